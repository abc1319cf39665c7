// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package expr implements the path expression language used by mapper templates
in `test` attributes, `foreach` collections and `#{}`/`${}` placeholders.

The language is deliberately small. It reads values, it never writes them:

  - literals: 'single' and "double" quoted strings, decimal numbers, null,
    true and false;
  - property paths: a bare identifier followed by any number of `.name` and
    `[expr]` accessors. Missing keys evaluate to null instead of failing;
  - calls: empty(x), count(x), strlen(x) and mb_strlen(x) are built in. Any
    other call is dispatched to a method on the receiver at evaluation time,
    subject to the MethodFilter of the evaluation Env;
  - operators, lowest to highest precedence: `?:`, `or`/`||`, `and`/`&&`,
    `==` `!=` `===` `!==` `eq`, `<` `>` `<=` `>=` `lt` `gt` `lte` `gte`,
    concatenation `.`, `+` `-`, `*` `/` `%`, and unary `!` `-`.

Assignment operators and the `$` sign are rejected at compile time.

# Compilation

Compile tokenizes the source, parses it into a tree and caches the result
process-wide keyed by the exact source string. Compilation is a pure function
of its input so cached values are never stale.

# Evaluation

Evaluation follows loose, PHP-like coercion rules for truthiness, equality and
arithmetic, with the exception that comparisons against the null literal are
always strict identity checks: `a == null` is false when a is 0, "" or false.
*/
package expr
