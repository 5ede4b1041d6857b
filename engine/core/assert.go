package core

import "fmt"

// Assert reports a programmer error. Debug builds (-tags debug) panic, release builds log
// the message and let the caller degrade. It returns cond so call sites can branch on it.
func Assert(cond bool, msg string, args ...interface{}) bool {
	if cond {
		return true
	}
	if Debug {
		panic(fmt.Sprintf(msg, args...))
	}
	LogError("assertion failed: "+msg, args...)
	return false
}
