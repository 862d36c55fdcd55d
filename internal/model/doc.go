// Package model defines the records shared by the CLI, the report writers
// and the check history database.
//
// A CheckResult captures one verification: which method ran against which
// endpoint through which proxy, how long it took, and how it ended. It is
// serialized to JSON both for --json reports and for storage.
package model
