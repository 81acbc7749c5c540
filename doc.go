// Package llamadb implements an in-process SQL engine: a tagged value
// system, a page-free in-memory table store, and the data model shared
// by the plan compiler (internal/compiler) and the plan executor
// (internal/executor). The SQL lexer, parser and REPL are external
// collaborators layered on top (internal/lexer, internal/parser,
// cmd/llamadb) and are not part of the core.
package llamadb
