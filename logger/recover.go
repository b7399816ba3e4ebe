package logger

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// RecoverAndLog stops a panic in the calling goroutine and reports it with its stack trace.
// It must be deferred directly.
func RecoverAndLog(log *zerolog.Logger, msg string) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().
		Str("error", fmt.Sprint(r)).
		Str("stack_trace", string(debug.Stack())).
		Msg(msg)
}
