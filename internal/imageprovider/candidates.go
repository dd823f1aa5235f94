package imageprovider

import (
	"context"
	"iter"
	"strings"
)

// extensions are tried in this order; PNG before JPG.
var extensions = [...]string{".png", ".jpg", ".PNG", ".JPG"}

// MaxCandidates is the number of paths probed for an unresolved name.
const MaxCandidates = len(extensions) * 3

// Candidates yields the remote paths to probe for name under prefix.
// For each extension the upper-case, lower-case and normalized forms are yielded
// in that order. Duplicate paths are kept so probe positions stay stable.
func Candidates(prefix, name string) iter.Seq[string] {
	original := Normalize(name)
	upper := strings.ToUpper(original)
	lower := strings.ToLower(original)

	return func(yield func(string) bool) {
		if original == "" {
			return
		}
		for _, ext := range extensions {
			for _, variant := range [...]string{upper, lower, original} {
				if !yield(prefix + variant + ext) {
					return
				}
			}
		}
	}
}

// attempt is the outcome of probing one candidate.
type attempt[T any] struct {
	value T
	path  string
	tries int
}

// firstSuccess calls try for each candidate in order until one succeeds.
// Failures go to onMiss and are otherwise dropped. Iteration stops when ctx is done.
func firstSuccess[T any](
	ctx context.Context,
	candidates iter.Seq[string],
	try func(context.Context, string) (T, error),
	onMiss func(path string, err error),
) (attempt[T], bool) {
	var a attempt[T]
	for path := range candidates {
		if ctx.Err() != nil {
			return a, false
		}
		a.tries++
		v, err := try(ctx, path)
		if err == nil {
			a.value = v
			a.path = path
			return a, true
		}
		if onMiss != nil {
			onMiss(path, err)
		}
	}
	return a, false
}
