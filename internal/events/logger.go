package events

import (
	"sync"

	"github.com/skinscan/skinscan/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the events module logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("events")
	})
	return serviceLogger
}
