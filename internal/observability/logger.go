package observability

import "github.com/partscatalog/imagecache/internal/logger"

// getLogger resolves lazily so the configured global logger is used.
func getLogger() logger.Logger {
	return logger.Global().Module("observability")
}
