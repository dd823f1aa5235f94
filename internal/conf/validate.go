package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/partscatalog/imagecache/internal/errors"
)

// knownFolders are the catalog folders a prefix may be configured for.
// Keys are lower case because viper folds map keys.
var knownFolders = map[string]bool{
	"make": true, "model": true, "products": true, "brand": true,
	"categories": true, "subcategories": true, "subaggregate": true, "aggregate": true,
}

// ValidationError collects every problem found in the settings.
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateOCISettings(&settings.OCI)...)
	ve.Errors = append(ve.Errors, validateImageSettings(&settings.Images)...)
	ve.Errors = append(ve.Errors, validatePreloadSettings(&settings.Preload)...)
	ve.Errors = append(ve.Errors, validateCatalogSettings(&settings.Catalog)...)
	ve.Errors = append(ve.Errors, validateServerSettings(&settings.Server)...)

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateOCISettings(s *OCISettings) []string {
	var problems []string
	switch s.Backend {
	case BackendHTTP:
		if !isAbsoluteURL(s.BaseURL) {
			problems = append(problems, fmt.Sprintf("oci.base_url %q must be an absolute URL", s.BaseURL))
		}
		if !strings.HasPrefix(s.ReadPath, "/") {
			problems = append(problems, "oci.read_path must start with /")
		}
	case BackendS3:
		if s.S3.Endpoint == "" {
			problems = append(problems, "oci.s3.endpoint is required for the s3 backend")
		}
		if s.S3.Bucket == "" {
			problems = append(problems, "oci.s3.bucket is required for the s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("oci.backend %q must be %s or %s", s.Backend, BackendHTTP, BackendS3))
	}
	if s.Timeout < 0 {
		problems = append(problems, "oci.timeout must not be negative")
	}
	if s.MaxObjectSize < 0 {
		problems = append(problems, "oci.max_object_size must not be negative")
	}
	if s.RateLimit < 0 {
		problems = append(problems, "oci.rate_limit must not be negative")
	}
	return problems
}

func validateImageSettings(s *ImageSettings) []string {
	var problems []string
	if s.FallbackRef == "" {
		problems = append(problems, "images.fallback_ref must not be empty")
	}
	for folder := range s.Folders {
		if !knownFolders[strings.ToLower(folder)] {
			problems = append(problems, fmt.Sprintf("images.folders has unknown folder %q", folder))
		}
	}
	return problems
}

func validatePreloadSettings(s *PreloadSettings) []string {
	var problems []string
	if s.BatchSize < 0 {
		problems = append(problems, "preload.batch_size must not be negative")
	}
	if s.WaveDelay < 0 {
		problems = append(problems, "preload.wave_delay must not be negative")
	}
	return problems
}

func validateCatalogSettings(s *CatalogSettings) []string {
	// model lookups are optional; without a base URL model images fall back
	if s.BaseURL == "" {
		return nil
	}
	if !isAbsoluteURL(s.BaseURL) {
		return []string{fmt.Sprintf("catalog.base_url %q must be an absolute URL", s.BaseURL)}
	}
	return nil
}

func validateServerSettings(s *ServerSettings) []string {
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return []string{fmt.Sprintf("server.listen %q: %v", s.Listen, err)}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
