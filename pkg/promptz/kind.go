package promptz

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Field names an owner-mutable entity field.
type Field string

// Mutable field constants.
const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldContent     Field = "content"
	FieldHowTo       Field = "howto"
	FieldTags        Field = "tags"
	FieldScope       Field = "scope"
	FieldSourceURL   Field = "sourceURL"
)

// Action is the verb half of an event detail type.
type Action string

// Actions staged by the resolvers.
const (
	ActionSaved      Action = "saved"
	ActionDeleted    Action = "deleted"
	ActionCopied     Action = "copied"
	ActionDownloaded Action = "downloaded"
)

// Kind describes one entity kind. The resolver, the stores and the HTTP layer
// are generic over it.
type Kind struct {
	// Name is the singular name used in event types, e.g. "prompt".
	Name string
	// Plural is used for routes and table names, e.g. "prompts".
	Plural string
	// Fields lists the owner-mutable fields this kind accepts.
	Fields []Field
}

// Allows reports whether f is mutable for this kind.
func (k Kind) Allows(f Field) bool {
	for _, allowed := range k.Fields {
		if allowed == f {
			return true
		}
	}
	return false
}

// EventType returns the detail type for an action on this kind,
// e.g. "prompt.saved".
func (k Kind) EventType(a Action) string {
	return k.Name + "." + string(a)
}

// Table returns the table name for this kind under the given prefix.
func (k Kind) Table(prefix string) string {
	return prefix + k.Plural
}

func (k Kind) String() string {
	return k.Name
}

var allFields = []Field{
	FieldName, FieldDescription, FieldContent, FieldHowTo,
	FieldTags, FieldScope, FieldSourceURL,
}

// Built-in kinds.
var (
	PromptKind = Kind{Name: "prompt", Plural: "prompts", Fields: allFields}
	RuleKind   = Kind{Name: "rule", Plural: "rules", Fields: without(allFields, FieldHowTo)}
	AgentKind  = Kind{Name: "agent", Plural: "agents", Fields: without(allFields, FieldHowTo)}
)

func without(fields []Field, drop Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}

// Registry resolves kinds by singular or plural name.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry creates a registry holding the given kinds.
func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, k := range kinds {
		r.Register(k)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in kinds.
func DefaultRegistry() *Registry {
	return NewRegistry(PromptKind, RuleKind, AgentKind)
}

// Register adds or replaces a kind.
func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[strings.ToLower(k.Name)] = k
	r.kinds[strings.ToLower(k.Plural)] = k
}

// Lookup finds a kind by singular or plural name.
func (r *Registry) Lookup(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[strings.ToLower(name)]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return k, nil
}

// Kinds returns the distinct registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []Kind
	for _, k := range r.kinds {
		if seen[k.Name] {
			continue
		}
		seen[k.Name] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
