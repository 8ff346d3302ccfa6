package promptz

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives the URL slug of an entity from its name and id.
//
// The name is lowercased, every run of characters outside [a-z0-9] becomes a
// single hyphen and leading/trailing hyphens are trimmed. The first
// hyphen-delimited segment of id is appended to tell apart entities sharing a
// name. There is no Unicode folding: non-ASCII names degrade to an empty
// prefix, which keeps slugs identical to the ones already stored.
func Slugify(name, id string) string {
	prefix := nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "-")
	prefix = strings.Trim(prefix, "-")
	segment, _, _ := strings.Cut(id, "-")
	return prefix + "-" + segment
}
