// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package node holds the compiled form of mapper statements: a tree of nodes,
one variant per markup tag, that renders SQL text and bind parameters for a
caller supplied context.

Trees are immutable once built and may be rendered concurrently. Everything a
single render needs, including the foreach bindings, the bind parameter
counter and the fragment resolver used by Include, lives in a per-call state
so that no node holds a reference back to its parent or its registry.

Text nodes recognise two placeholder forms:

	#{expr}  evaluates expr and binds the value as a query parameter.
	${expr}  evaluates expr and inlines it into the SQL text, or NULL.

The second form is never parameterized and must only carry trusted values
such as identifiers or limits.
*/
package node
