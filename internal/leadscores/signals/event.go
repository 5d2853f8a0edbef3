package signals

import "fmt"

// EventType names a raw signal reported by a beacon.
type EventType string

const (
	EventPageVisit       EventType = "page_visit"
	EventScroll          EventType = "scroll"
	EventTime            EventType = "time"
	EventFormInteraction EventType = "form"
	EventServiceView     EventType = "service_view"
	EventUTM             EventType = "utm"
	EventTrialStarted    EventType = "trial_started"
)

// Event is one raw signal. Only the fields relevant to Type are read.
type Event struct {
	Type   EventType
	Path   string
	Value  int
	Source string
	Medium string
}

// Apply records e on the store.
func (s *Store) Apply(e Event) error {
	switch e.Type {
	case EventPageVisit:
		s.RecordPageVisit(e.Path)
	case EventScroll:
		s.RecordScrollDepth(e.Value)
	case EventTime:
		s.RecordTimeOnSite(e.Value)
	case EventFormInteraction:
		s.RecordFormInteraction()
	case EventServiceView:
		s.RecordServiceView()
	case EventUTM:
		s.RecordUTM(e.Source, e.Medium)
	case EventTrialStarted:
		s.MarkTrialStarted()
	default:
		return fmt.Errorf("unknown signal event type %q", e.Type)
	}
	return nil
}

// ValidEventType reports whether t is a known event type.
func ValidEventType(t string) bool {
	switch EventType(t) {
	case EventPageVisit, EventScroll, EventTime, EventFormInteraction,
		EventServiceView, EventUTM, EventTrialStarted:
		return true
	}
	return false
}
