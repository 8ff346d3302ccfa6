package bus

import (
	"encoding/json"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cremich/promptz-sub001/pkg/promptz"
)

// ExtensionEntityKind carries the entity kind on the CloudEvents envelope.
const ExtensionEntityKind = "entitykind"

// ToCloudEvent wraps a domain event in a CloudEvents 1.0 envelope. Source and
// detail type map onto the source and type attributes; the entity is the data.
func ToCloudEvent(e *promptz.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(e.ID)
	ce.SetSource(e.Source)
	ce.SetType(e.DetailType)
	ce.SetTime(e.Time)
	ce.SetExtension(ExtensionEntityKind, e.Kind())
	if e.Detail != nil {
		ce.SetSubject(e.Detail.ID)
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, e.Detail); err != nil {
		return ce, fmt.Errorf("set event data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid cloudevent: %w", err)
	}
	return ce, nil
}

// FromCloudEvent unwraps an envelope produced by ToCloudEvent.
func FromCloudEvent(ce cloudevents.Event) (*promptz.Event, error) {
	var detail promptz.Entity
	if err := ce.DataAs(&detail); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}
	return &promptz.Event{
		ID:         ce.ID(),
		Source:     ce.Source(),
		DetailType: ce.Type(),
		Time:       ce.Time(),
		Detail:     &detail,
	}, nil
}

// Marshal encodes e as a structured-mode CloudEvents JSON document.
func Marshal(e *promptz.Event) ([]byte, error) {
	ce, err := ToCloudEvent(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ce)
}

// Unmarshal decodes a structured-mode CloudEvents JSON document.
func Unmarshal(data []byte) (*promptz.Event, error) {
	var ce cloudevents.Event
	if err := json.Unmarshal(data, &ce); err != nil {
		return nil, fmt.Errorf("decode cloudevent: %w", err)
	}
	return FromCloudEvent(ce)
}

// Subject returns the bus subject of e under prefix, e.g.
// "promptz.events.prompt.saved".
func Subject(prefix string, e *promptz.Event) string {
	return strings.TrimSuffix(prefix, ".") + "." + e.DetailType
}
