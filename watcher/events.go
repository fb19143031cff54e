// Package watcher produces project events from external change sources:
// instrument filesystems and the projects-DB change feed.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/projectdb"
)

// Kind tags an event with its type. Payload schema is per-kind.
type Kind string

// Event kinds.
const (
	KindProjectChange Kind = "project_change"
	KindFlowcellReady Kind = "flowcell_ready"
	KindDeliveryReady Kind = "delivery_ready"
)

// ParseKind maps a string to a known event kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindProjectChange, KindFlowcellReady, KindDeliveryReady:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown event kind: %q", s)
}

// Event is one observation from an external source.
type Event struct {
	ID        string
	Kind      Kind
	Payload   any
	Source    string
	Timestamp time.Time
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(kind Kind, payload any, source string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// ProjectChangePayload accompanies KindProjectChange events.
type ProjectChangePayload struct {
	Document       *projectdb.ProjectDocument
	ModuleLocation string
}

// FlowcellReadyPayload accompanies KindFlowcellReady events.
type FlowcellReadyPayload struct {
	Instrument string
	Subfolder  string
}

// DeliveryReadyPayload accompanies KindDeliveryReady events.
type DeliveryReadyPayload struct {
	ProjectID string
	Entry     docstore.DeliveryResult
	SampleIDs []string
}

// EmitFunc receives events produced by a watcher.
type EmitFunc func(Event)

// Watcher is the common contract of all change-source watchers. Start
// produces events via emit until the context is cancelled or Stop is
// called; Stop returns only after the watcher has quiesced. Watchers
// share no state with each other.
type Watcher interface {
	Name() string
	Start(ctx context.Context, emit EmitFunc) error
	Stop()
}
