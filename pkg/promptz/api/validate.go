package api

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/cremich/promptz-sub001/pkg/promptz"
)

// Input limits for save requests.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxContentLength     = 100_000
	MaxTags              = 10
	MaxTagLength         = 50
)

// Validate checks a save request before it reaches the service.
func Validate(kind promptz.Kind, req promptz.SaveRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return invalid("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return invalid("name exceeds %d characters", MaxNameLength)
	}
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLength {
		return invalid("description exceeds %d characters", MaxDescriptionLength)
	}
	if utf8.RuneCountInString(req.Content) > MaxContentLength {
		return invalid("content exceeds %d characters", MaxContentLength)
	}
	if req.HowTo != "" && !kind.Allows(promptz.FieldHowTo) {
		return invalid("%s does not support howto", kind.Name)
	}
	if req.Scope != "" && !req.Scope.IsValid() {
		return invalid("invalid scope %q", req.Scope)
	}

	if len(req.Tags) > MaxTags {
		return invalid("at most %d tags are allowed", MaxTags)
	}
	for _, tag := range req.Tags {
		if strings.TrimSpace(tag) == "" {
			return invalid("tags must not be empty")
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return invalid("tag %q exceeds %d characters", tag, MaxTagLength)
		}
	}

	if req.SourceURL != "" {
		u, err := url.Parse(req.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("sourceURL must be an absolute http(s) URL")
		}
	}
	return nil
}
