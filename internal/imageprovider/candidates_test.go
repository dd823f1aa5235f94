package imageprovider

import (
	"context"
	"slices"
	"testing"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates_Order(t *testing.T) {
	t.Parallel()

	got := slices.Collect(Candidates("make/", "Maruti+Suzuki"))
	want := []string{
		"make/MARUTI SUZUKI.png", "make/maruti suzuki.png", "make/Maruti Suzuki.png",
		"make/MARUTI SUZUKI.jpg", "make/maruti suzuki.jpg", "make/Maruti Suzuki.jpg",
		"make/MARUTI SUZUKI.PNG", "make/maruti suzuki.PNG", "make/Maruti Suzuki.PNG",
		"make/MARUTI SUZUKI.JPG", "make/maruti suzuki.JPG", "make/Maruti Suzuki.JPG",
	}
	assert.Equal(t, want, got)
	assert.Len(t, got, MaxCandidates)
}

func TestCandidates_Deterministic(t *testing.T) {
	t.Parallel()

	first := slices.Collect(Candidates("brand/", "bosch (f)"))
	second := slices.Collect(Candidates("brand/", "bosch (f)"))
	assert.Equal(t, first, second)
	assert.Equal(t, "brand/BOSCH (F).png", first[0])
}

func TestCandidates_KeepsDuplicates(t *testing.T) {
	t.Parallel()

	got := slices.Collect(Candidates("products/", "12345"))
	require.Len(t, got, MaxCandidates)
	assert.Equal(t, "products/12345.png", got[0])
	assert.Equal(t, "products/12345.png", got[1])
	assert.Equal(t, "products/12345.png", got[2])
	assert.Equal(t, "products/12345.jpg", got[3])
}

func TestCandidates_EmptyName(t *testing.T) {
	t.Parallel()

	assert.Empty(t, slices.Collect(Candidates("make/", "")))
	assert.Empty(t, slices.Collect(Candidates("make/", " + ")))
}

func TestCandidates_NoPrefix(t *testing.T) {
	t.Parallel()

	got := slices.Collect(Candidates("", "hub"))
	assert.Equal(t, "HUB.png", got[0])
}

func TestCandidates_StopsEarly(t *testing.T) {
	t.Parallel()

	var seen []string
	for path := range Candidates("make/", "audi") {
		seen = append(seen, path)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"make/AUDI.png", "make/audi.png"}, seen)
}

func TestFirstSuccess(t *testing.T) {
	t.Parallel()

	var tried, missed []string
	try := func(_ context.Context, path string) (string, error) {
		tried = append(tried, path)
		if path == "make/AUDI.jpg" {
			return "payload", nil
		}
		return "", errors.NewStd("miss")
	}

	hit, ok := firstSuccess(t.Context(), Candidates("make/", "audi"), try, func(path string, _ error) {
		missed = append(missed, path)
	})
	require.True(t, ok)
	assert.Equal(t, "payload", hit.value)
	assert.Equal(t, "make/AUDI.jpg", hit.path)
	assert.Equal(t, 4, hit.tries)
	assert.Len(t, tried, 4)
	assert.Len(t, missed, 3)
}

func TestFirstSuccess_Exhausted(t *testing.T) {
	t.Parallel()

	try := func(context.Context, string) (int, error) { return 0, errors.NewStd("miss") }
	hit, ok := firstSuccess(t.Context(), Candidates("make/", "audi"), try, nil)
	assert.False(t, ok)
	assert.Equal(t, MaxCandidates, hit.tries)
}

func TestFirstSuccess_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	try := func(context.Context, string) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.NewStd("miss")
	}

	_, ok := firstSuccess(ctx, Candidates("make/", "audi"), try, nil)
	assert.False(t, ok)
	assert.Equal(t, 2, calls)
}
