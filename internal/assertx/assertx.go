// Package assertx is the module's one assertion helper, reproducing
// the role internal/debug.Assert plays throughout the teacher's
// internal/tree package: a fail-fast check for conditions that a
// correctly constructed Cursor should never violate (TypeMismatch in
// the error taxonomy is a programming error, not a recoverable one).
package assertx

import "fmt"

// Assert panics with a formatted message if cond is false. Reserved
// for invariant violations (a mutation reaching a read-only Node, a
// cursor operation assuming a tag its atom does not have) — never for
// conditions a caller can trigger through normal, valid use.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
