package errors

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	reported atomic.Int32
}

func (r *countingReporter) ReportError(_ *EnhancedError) { r.reported.Add(1) }
func (r *countingReporter) IsEnabled() bool { return true }

func TestBuildDefaults(t *testing.T) {
	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	inner := NotFound("objectstore", "object %q not found", "a.png")
	outer := Wrap(fmt.Errorf("probe: %w", inner)).Component("imageprovider").Build()

	assert.Equal(t, CategoryNotFound, outer.Category)
	assert.True(t, IsNotFound(outer))
	assert.True(t, Is(outer, inner))
}

func TestBuilderContext(t *testing.T) {
	ee := Newf("read failed").
		Component("objectstore").
		Category(CategoryNetwork).
		Context("path", "images/make/AUDI.png").
		Priority("bogus").
		Build()

	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "images/make/AUDI.png", ctx["path"])
	assert.Equal(t, PriorityMedium, ee.Priority)

	// returned context is a copy
	ctx["path"] = "changed"
	assert.Equal(t, "images/make/AUDI.png", ee.GetContext()["path"])
}

func TestIsCategory(t *testing.T) {
	err := Newf("boom").Category(CategoryImageFetch).Build()

	assert.True(t, IsCategory(err, CategoryImageFetch))
	assert.False(t, IsCategory(err, CategoryNotFound))
	assert.False(t, IsCategory(fmt.Errorf("plain"), CategoryImageFetch))
}

func TestTelemetryReporterInvoked(t *testing.T) {
	reporter := &countingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	_ = Newf("first").Build()
	_ = Newf("second").Build()

	assert.Equal(t, int32(2), reporter.reported.Load())
}

func TestUnreportedSkipsTelemetry(t *testing.T) {
	reporter := &countingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	err := Newf("connection refused").
		Category(CategoryNetwork).
		Unreported().
		Build()

	assert.Equal(t, int32(0), reporter.reported.Load())
	assert.False(t, err.IsReported())
	assert.True(t, IsCategory(err, CategoryNetwork))

	_ = Newf("summary").Category(CategoryImageFetch).Build()
	assert.Equal(t, int32(1), reporter.reported.Load())
}

func TestScrubMessage(t *testing.T) {
	scrubbed := scrubMessage("GET https://oci.example.com/api/oci/read?name=secret.png failed")
	assert.Equal(t, "GET https://oci.example.com/api/oci/read?[REDACTED] failed", scrubbed)

	scrubbed = scrubMessage("minio: secret_key=abc123 rejected")
	assert.False(t, strings.Contains(scrubbed, "abc123"), "secret leaked: %s", scrubbed)
}

func TestErrorTitle(t *testing.T) {
	ee := Newf("x").Component("objectstore").Category(CategoryNetwork).Build()
	assert.Equal(t, "Objectstore Network Error", errorTitle(ee))
}
