// Package sqlite provides the modernc.org/sqlite backed infrastructure driver.
//
// It owns connection setup (pragmas, pool sizing) and the embedded goose
// migrations for the tables the knowledge engine keeps in SQLite.
package sqlite
