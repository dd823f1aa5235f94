// Package imageprovider resolves catalog images stored under an inconsistent naming
// convention, caches the payloads for the life of the process and drives per-consumer
// loads with liveness guarantees.
package imageprovider

import (
	"slices"
	"strings"
)

// Folder is the catalog section an image belongs to.
type Folder string

const (
	FolderMake          Folder = "make"
	FolderModel         Folder = "model"
	FolderProducts      Folder = "products"
	FolderBrand         Folder = "brand"
	FolderCategories    Folder = "categories"
	FolderSubcategories Folder = "subcategories"
	FolderSubAggregate  Folder = "subAggregate"
	FolderAggregate     Folder = "aggregate"
)

// Folders lists every known folder.
var Folders = []Folder{
	FolderMake, FolderModel, FolderProducts, FolderBrand,
	FolderCategories, FolderSubcategories, FolderSubAggregate, FolderAggregate,
}

// Known reports whether f is one of the catalog folders.
func (f Folder) Known() bool {
	return slices.Contains(Folders, f)
}

// ParseFolder matches s against the known folders, ignoring case.
func ParseFolder(s string) (Folder, bool) {
	for _, f := range Folders {
		if strings.EqualFold(string(f), s) {
			return f, true
		}
	}
	return Folder(s), false
}

// FolderPrefixes maps a folder to the remote path prefix of its objects.
type FolderPrefixes map[Folder]string

// DefaultFolderPrefixes returns the prefixes of the six folders stored remotely.
// subAggregate and aggregate have no prefix.
func DefaultFolderPrefixes() FolderPrefixes {
	return FolderPrefixes{
		FolderMake:          "make/",
		FolderModel:         "model/",
		FolderProducts:      "products/",
		FolderBrand:         "brand/",
		FolderCategories:    "categories/",
		FolderSubcategories: "subcategories/",
	}
}

// ParseFolderPrefixes converts a configured folder -> prefix map. Unknown folders
// are skipped and returned separately.
func ParseFolderPrefixes(m map[string]string) (FolderPrefixes, []string) {
	prefixes := make(FolderPrefixes, len(m))
	var unknown []string
	for name, prefix := range m {
		f, ok := ParseFolder(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		prefixes[f] = prefix
	}
	slices.Sort(unknown)
	return prefixes, unknown
}

// Prefix returns the prefix for f, or "" when f is unmapped.
func (p FolderPrefixes) Prefix(f Folder) string {
	return p[f]
}

// Key identifies an image by what the consumer knows about it.
// AuxName carries the make for model images.
type Key struct {
	Folder  Folder `json:"folder" yaml:"folder"`
	Name    string `json:"name" yaml:"name"`
	AuxName string `json:"aux_name,omitempty" yaml:"aux_name,omitempty"`
}

// String returns the canonical cache key form folder|name|aux.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.Folder) + len(k.Name) + len(k.AuxName) + 2)
	b.WriteString(string(k.Folder))
	b.WriteByte('|')
	b.WriteString(k.Name)
	b.WriteByte('|')
	b.WriteString(k.AuxName)
	return b.String()
}

// Empty reports whether the key has no usable name.
func (k Key) Empty() bool {
	return Normalize(k.Name) == ""
}
