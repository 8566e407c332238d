// Package goid identifies the calling goroutine.
//
// The engine's threading rules are expressed in terms of "the calling
// thread". Goroutines stand in for threads throughout the binding, so the
// affinity lock and the embedded engine both need a stable identity for
// the caller.
package goid

import "runtime"

// Get returns the numeric id of the calling goroutine. The id is parsed
// from the header line of the goroutine's stack trace,
// "goroutine 123 [running]:".
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = len("goroutine ")
	var id int64
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
