package caller

import "fmt"

// Kassert panics with msg, first dumping the caller chain starting two
// frames up (skipping Kassert itself and its immediate caller's
// prologue) so the fatal-assertion log entry carries a stack trace for
// postmortem debugging.
func Kassert(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("kernel assertion failed: %s\n", msg)
	Callerdump(2)
	panic(msg)
}
