package api

import (
	"sync"

	"github.com/skinscan/skinscan/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("api")
	})
	return serviceLogger
}
