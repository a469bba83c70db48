package goplus

import (
	"runtime/debug"

	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Recover 记录 panic 及调用栈，需在 defer 中直接调用
func Recover() {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("goroutine panic recovered")
	}
}
