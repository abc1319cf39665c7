// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains the reflection code used to read from and write to
user supplied values. Expressions read struct fields and map keys through it,
generated keys are written back through it and result rows are scanned into
structs with it. As much as possible, reflection code is limited to this
package.

Struct members are found by "db" tag first, then by exact field name, then by
case insensitive field name. Only exported fields are visible.
*/
package typeinfo
