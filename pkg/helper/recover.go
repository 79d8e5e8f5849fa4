package helper

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from panics in goroutines and logs the stack trace.
// Usage: defer helper.RecoverPanic(log, "goroutine-name")
func RecoverPanic(log *logrus.Entry, name string) {
	if r := recover(); r != nil {
		log.Errorf("PANIC recovered in %s: %v\nStack: %s", name, r, debug.Stack())
	}
}

// Go runs fn in a goroutine tracked by wg. A panic in fn is logged and
// swallowed; wg is released either way.
func Go(wg *sync.WaitGroup, log *logrus.Entry, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer RecoverPanic(log, name)
		fn()
	}()
}
