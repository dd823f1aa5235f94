//go:build ruleguard

// Package gorules contains project lint rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupModernize reports the Add/Done goroutine pattern; wg.Go replaces it.
func WaitGroupModernize(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Consider using $wg.Go() which calls Add(1) automatically")
}

// TestingContext reports context.Background() and context.TODO() in tests.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests so work is cancelled when the test ends")
}

// EnhancedErrors reports fmt.Errorf in internal packages. Errors leaving a
// component carry a component and category for logging and telemetry.
func EnhancedErrors(m dsl.Matcher) {
	m.Import("github.com/partscatalog/imagecache/internal/errors")

	m.Match(`fmt.Errorf($*args)`).
		Where(m.File().PkgPath.Matches(`/internal/(imageprovider|objectstore|catalog|httpserver|app)$`)).
		Report("use errors.Newf($args).Component(...).Category(...).Build()")
}

// ModuleLogger reports the standard library loggers outside of main.
func ModuleLogger(m dsl.Matcher) {
	m.Match(`log.Printf($*_)`, `log.Println($*_)`, `log.Print($*_)`, `slog.Info($*_)`, `slog.Debug($*_)`, `slog.Warn($*_)`, `slog.Error($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().PkgPath.Matches(`/internal/logger$`)).
		Report("log through logger.Global().Module(...) with typed fields")
}

// SharedHTTPClient reports direct use of the default HTTP client. Outgoing
// requests go through internal/httpclient for timeouts and hooks.
func SharedHTTPClient(m dsl.Matcher) {
	m.Match(`http.Get($*_)`, `http.Head($*_)`, `http.Post($*_)`, `http.DefaultClient.Do($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/httpclient instead of the default HTTP client")
}
