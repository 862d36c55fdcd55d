// Package database keeps the history of Tor checks in SQLite.
//
// Every check the CLI runs is stored as one row of the checks table in
// <dir>/torcheck.db, so "torcheck history" can show when Tor was last
// confirmed and through which proxy. The pure-Go modernc.org/sqlite driver
// keeps the binary free of cgo.
package database
