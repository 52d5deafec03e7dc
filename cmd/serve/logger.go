package serve

import (
	"sync"

	"github.com/skinscan/skinscan/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the serve command logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("serve")
	})
	return serviceLogger
}
