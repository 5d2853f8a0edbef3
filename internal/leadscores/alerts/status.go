// Package alerts defines the review workflow of VIP alerts.
package alerts

// Status is the review state of a VIP alert.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusDismissed Status = "dismissed"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusContacted, StatusConverted, StatusDismissed},
	StatusContacted: {StatusConverted},
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusNew, StatusContacted, StatusConverted, StatusDismissed:
		return s, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusDismissed
}

// CanTransition reports whether an admin may move an alert from one status to
// another. Re-applying the current non-terminal status is allowed so notes can
// be updated without advancing the workflow.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
