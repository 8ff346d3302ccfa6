package promptz

import (
	"strings"
	"time"
)

// DefaultEventSource is the namespace stamped on every published event.
const DefaultEventSource = "promptz.content"

// Event is a staged domain event. A resolver stage produces at most one; it
// lives only until the publisher stage has run.
type Event struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	DetailType string    `json:"detailType"`
	Time       time.Time `json:"time"`
	Detail     *Entity   `json:"detail"`
}

// Kind returns the entity kind half of the detail type.
func (e *Event) Kind() string {
	kind, _, _ := strings.Cut(e.DetailType, ".")
	return kind
}
