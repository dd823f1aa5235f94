package conf

import (
	"time"

	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/spf13/viper"
)

// Default values shared with the components that consume them.
const (
	DefaultFallbackRef   = "/assets/no-image.png"
	DefaultReadPath      = "/api/oci/read"
	DefaultListenAddress = ":8080"
)

// defaultFolders maps each stored folder to its remote prefix.
// subAggregate and aggregate have no prefix.
func defaultFolders() map[string]string {
	return map[string]string{
		"make":          "make/",
		"model":         "model/",
		"products":      "products/",
		"brand":         "brand/",
		"categories":    "categories/",
		"subcategories": "subcategories/",
	}
}

// setDefaultConfig registers a default for every known key so that environment
// overrides are picked up by Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("oci.backend", BackendHTTP)
	v.SetDefault("oci.base_url", "http://localhost:3000")
	v.SetDefault("oci.read_path", DefaultReadPath)
	v.SetDefault("oci.timeout", 15*time.Second)
	v.SetDefault("oci.max_object_size", 10*1024*1024)
	v.SetDefault("oci.rate_limit", 0.0)
	v.SetDefault("oci.s3.endpoint", "")
	v.SetDefault("oci.s3.bucket", "")
	v.SetDefault("oci.s3.access_key", "")
	v.SetDefault("oci.s3.secret_key", "")
	v.SetDefault("oci.s3.use_ssl", true)
	v.SetDefault("oci.s3.region", "")
	v.SetDefault("oci.s3.prefix", "")

	v.SetDefault("images.fallback_ref", DefaultFallbackRef)
	v.SetDefault("images.coalesce_inflight", false)
	v.SetDefault("images.folders", defaultFolders())

	v.SetDefault("preload.batch_size", 3)
	v.SetDefault("preload.wave_delay", 100*time.Millisecond)

	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.model_path", "/api/models/resolve")
	v.SetDefault("catalog.cache_ttl", 30*time.Minute)

	v.SetDefault("server.listen", DefaultListenAddress)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
