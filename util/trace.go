package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace logs how long a block took: defer util.Trace("remove bg")()
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		Logger.Debug(msg, zap.Duration("cost", time.Since(start)))
	}
}
