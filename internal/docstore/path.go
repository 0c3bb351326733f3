package docstore

import (
	"regexp"
	"strings"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)*$`)

func validField(f string) bool {
	return fieldPattern.MatchString(f)
}

// Join builds a slash separated path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func segments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

// IsDocumentPath reports whether path names a document (even number of segments).
func IsDocumentPath(path string) bool {
	s := segments(path)
	return len(s) > 0 && len(s)%2 == 0
}

// IsCollectionPath reports whether path names a collection (odd number of segments).
func IsCollectionPath(path string) bool {
	s := segments(path)
	return len(s)%2 == 1
}

// SplitDocument returns the parent collection path and the id of a document path.
func SplitDocument(path string) (collection, id string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// CollectionID returns the last segment of a collection path, the id that
// collection group queries match on.
func CollectionID(collection string) string {
	i := strings.LastIndexByte(collection, '/')
	return collection[i+1:]
}

// FieldPath splits a dotted field path.
func FieldPath(field string) []string {
	return strings.Split(field, ".")
}
