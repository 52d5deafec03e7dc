// Package conf provides configuration management for SkinScan.
package conf

import "github.com/skinscan/skinscan/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger each time because the central logger is installed after Load.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
