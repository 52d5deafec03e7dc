package classify

import (
	"sync"

	"github.com/skinscan/skinscan/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the classify command logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("classify")
	})
	return serviceLogger
}
