package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JournalName is the run's append-only event log. Scheduling never reads it.
const JournalName = "_events.jsonl"

const (
	EventTypeRunStarted           = "run_started"
	EventTypeReplicationDiscarded = "replication_discarded"
	EventTypeGenerationDispatched = "generation_dispatched"
	EventTypeGenerationAdvanced   = "generation_advanced"
	EventTypeGenerationArchived   = "generation_archived"
	EventTypeAdvanceSkipped       = "advance_skipped"
	EventTypeRunCompleted         = "run_completed"
)

var ErrInvalidEvent = errors.New("invalid event")

var validEventTypes = map[string]struct{}{
	EventTypeRunStarted:           {},
	EventTypeReplicationDiscarded: {},
	EventTypeGenerationDispatched: {},
	EventTypeGenerationAdvanced:   {},
	EventTypeGenerationArchived:   {},
	EventTypeAdvanceSkipped:       {},
	EventTypeRunCompleted:         {},
}

type EventEnvelope struct {
	EventID     string          `json:"event_id"`
	TS          time.Time       `json:"ts"`
	Type        string          `json:"type"`
	Set         string          `json:"set,omitempty"`
	Replication int             `json:"replication"`
	Generation  int             `json:"generation"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func ValidateEventEnvelope(event EventEnvelope) error {
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if event.TS.IsZero() {
		return fmt.Errorf("%w: ts is required", ErrInvalidEvent)
	}
	if _, ok := validEventTypes[strings.TrimSpace(event.Type)]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	}
	return nil
}

// Journal appends events for one run. A nil Journal drops everything.
type Journal struct {
	Path string
	Now  func() time.Time
}

func NewJournal(runRoot string) *Journal {
	return &Journal{Path: filepath.Join(runRoot, JournalName), Now: time.Now}
}

// Emit records an event. id may be nil for run-level events. Each event is
// one JSON line; a failed payload encoding drops the payload, not the event.
func (j *Journal) Emit(eventType string, id *Identity, payload map[string]any) error {
	if j == nil {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	event := EventEnvelope{EventID: NewEventID(), TS: now().UTC(), Type: eventType}
	if id != nil {
		event.Set, event.Replication, event.Generation = id.Set, id.Replication, id.Generation
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}
	if err := ValidateEventEnvelope(event); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	f, err := os.OpenFile(j.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		f, err = os.OpenFile(j.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append %s event: %w", eventType, werr)
	}
	return cerr
}

// ReadEvents loads a journal in append order. Blank lines are skipped; any
// other line must be a valid envelope.
func ReadEvents(path string) ([]EventEnvelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var events []EventEnvelope
	for n, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event EventEnvelope
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", n+1, err)
		}
		if err := ValidateEventEnvelope(event); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", n+1, err)
		}
		events = append(events, event)
	}
	return events, nil
}
