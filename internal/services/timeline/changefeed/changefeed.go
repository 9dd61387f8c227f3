// Package changefeed carries "events appended" notifications over Kafka.
//
// Ingestion publishes one Notice per appended event. The timeline service
// consumes them and pre-computes the affected resident and resource timelines
// so the next rendering request is a cache hit. Notices carry identifiers
// only; the event store stays the source of truth.
package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
)

// Notice announces one appended event.
type Notice struct {
	ResidentID string `json:"resident_id"`
	ResourceID string `json:"resource_id"`
	EventID    string `json:"event_id,omitempty"`
}

// NoticeFor builds the notice for a stored event.
func NoticeFor(evt event.Event) Notice {
	return Notice{ResidentID: evt.ResidentID, ResourceID: evt.ResourceID, EventID: evt.ID}
}

// Subjects lists the timelines the notice affects.
func (n Notice) Subjects() []timeline.Subject {
	var out []timeline.Subject
	if n.ResidentID != "" {
		out = append(out, timeline.Subject{Kind: timeline.SubjectResident, ID: n.ResidentID})
	}
	if n.ResourceID != "" {
		out = append(out, timeline.Subject{Kind: timeline.SubjectResource, ID: n.ResourceID})
	}
	return out
}

// Key partitions notices by resource so one resource's notices stay ordered.
func (n Notice) Key() []byte {
	return []byte(n.ResourceID)
}

// Encode marshals the notice as JSON.
func (n Notice) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeNotice parses a message value. Unknown fields are ignored.
func DecodeNotice(raw []byte) (Notice, error) {
	var n Notice
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notice{}, fmt.Errorf("decode notice: %w", err)
	}
	n.ResidentID = strings.TrimSpace(n.ResidentID)
	n.ResourceID = strings.TrimSpace(n.ResourceID)
	if n.ResidentID == "" && n.ResourceID == "" {
		return Notice{}, errors.New("notice names neither resident nor resource")
	}
	return n, nil
}
