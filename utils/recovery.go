package utils

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack it was raised on
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverFromPanic recovers from panics and logs them
func RecoverFromPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		logger.Error("Panic recovered in %s: %v\nStack trace:\n%s", context, r, string(stack))
	}
}

// SafeGo runs a goroutine with panic recovery
func SafeGo(logger *Logger, context string, fn func()) {
	go func() {
		defer RecoverFromPanic(logger, context)
		fn()
	}()
}
