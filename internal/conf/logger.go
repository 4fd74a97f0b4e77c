package conf

import "github.com/pagd-project/pagd-go/internal/logger"

// GetLogger returns the config package logger. It is fetched on each call
// because the central logger is installed after settings are loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
