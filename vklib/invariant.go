package vklib

import "fmt"

// Violation is the payload of an invariant panic: a condition that indicates
// a bug in the core itself (an internal table index out of range, a
// precondition the caller already should have satisfied), never a
// recoverable runtime/driver condition. See spec §9 DESIGN NOTES: the
// teacher's exit()-inside-assertion-macro style is replaced by Error values
// everywhere except this one narrow channel.
type Violation struct {
	Where string
	Why   string
}

func (v Violation) String() string {
	return fmt.Sprintf("invariant violated in %s: %s", v.Where, v.Why)
}

// Invariant panics with a Violation if ok is false. Callers must only use
// this for conditions that can never legitimately occur at runtime.
func Invariant(ok bool, where, why string) {
	if !ok {
		panic(Violation{Where: where, Why: why})
	}
}
