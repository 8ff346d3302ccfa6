package promptz

import (
	"time"
)

// Scope is the visibility of an entity.
type Scope string

// Scope constants (typed).
const (
	ScopePrivate Scope = "private"
	ScopePublic  Scope = "public"
)

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopePrivate, ScopePublic:
		return true
	}
	return false
}

// Counter names a usage counter maintained by the counter resolver.
type Counter string

// Counter constants (typed).
const (
	CounterCopy     Counter = "copyCount"
	CounterDownload Counter = "downloadCount"
)

// IsValid reports whether c is a known counter.
func (c Counter) IsValid() bool {
	return c == CounterCopy || c == CounterDownload
}

// Entity is a piece of shared content: a prompt, a project rule or an agent.
//
// Owner, CreatedAt and the counters are server-managed. Slug is derived from
// Name and ID on every save.
type Entity struct {
	ID            string    `json:"id" dynamodbav:"id"`
	Slug          string    `json:"slug" dynamodbav:"slug"`
	Owner         string    `json:"owner" dynamodbav:"owner"`
	Name          string    `json:"name" dynamodbav:"name"`
	Description   string    `json:"description" dynamodbav:"description"`
	Content       string    `json:"content,omitempty" dynamodbav:"content,omitempty"`
	HowTo         string    `json:"howto,omitempty" dynamodbav:"howto,omitempty"`
	Tags          []string  `json:"tags" dynamodbav:"tags"`
	Scope         Scope     `json:"scope" dynamodbav:"scope"`
	SourceURL     string    `json:"sourceURL,omitempty" dynamodbav:"sourceURL,omitempty"`
	CopyCount     int64     `json:"copyCount" dynamodbav:"copyCount"`
	DownloadCount int64     `json:"downloadCount" dynamodbav:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = append([]string{}, e.Tags...)
	return &c
}

// SaveRequest carries the owner-mutable fields of an entity. An empty ID
// selects create mode, a non-empty ID selects update mode.
type SaveRequest struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content,omitempty"`
	HowTo       string   `json:"howto,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Scope       Scope    `json:"scope,omitempty"`
	SourceURL   string   `json:"sourceURL,omitempty"`
}

// IsUpdate reports whether the request targets an existing entity.
func (r SaveRequest) IsUpdate() bool {
	return r.ID != ""
}
