package ir

// EventKind names the lifecycle transition an event records.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventExtended    EventKind = "extended"
	EventDeactivated EventKind = "deactivated"
	EventClosed      EventKind = "closed"
)

// ValidEventKinds defines the allowed event kinds.
var ValidEventKinds = map[EventKind]bool{
	EventCreated:     true,
	EventExtended:    true,
	EventDeactivated: true,
	EventClosed:      true,
}

// Event is one entry in the append-only lifecycle log. Exactly one event is
// written per successful operation, in the same transaction as the state
// change it describes.
type Event struct {
	Seq       int64     `json:"seq"` // Store-assigned, strictly increasing
	ID        string    `json:"id"`  // Content-addressed, see EventID
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id"`
	Record    Address   `json:"record"`
	Table     Address   `json:"table"`
	Slot      Slot      `json:"slot"`

	// created
	Owner *Address `json:"owner,omitempty"`

	// extended
	EntriesAdded uint32 `json:"entries_added,omitempty"`
	TotalEntries uint32 `json:"total_entries,omitempty"`

	// closed
	Reclaimed uint64 `json:"reclaimed_lamports,omitempty"`
}

// Payload returns the canonical object the event ID is computed over.
// Seq is excluded: it is assigned by the store after the ID is fixed.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"kind":       string(e.Kind),
		"request_id": e.RequestID,
		"record":     e.Record.String(),
		"table":      e.Table.String(),
		"slot":       int64(e.Slot),
	}
	switch e.Kind {
	case EventCreated:
		if e.Owner != nil {
			p["owner"] = e.Owner.String()
		}
	case EventExtended:
		p["entries_added"] = int64(e.EntriesAdded)
		p["total_entries"] = int64(e.TotalEntries)
	case EventClosed:
		p["reclaimed_lamports"] = int64(e.Reclaimed)
	}
	return p
}
