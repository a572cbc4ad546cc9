package documents

// Status is a document's position in the processing lifecycle.
type Status string

const (
	StatusCreated              Status = "created"
	StatusUploading            Status = "uploading"
	StatusSubmitted            Status = "submitted"
	StatusProcessing           Status = "processing"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
	StatusReconciliationFailed Status = "reconciliation_failed"
)

var transitions = map[Status][]Status{
	StatusCreated:    {StatusUploading},
	StatusUploading:  {StatusSubmitted, StatusError},
	StatusSubmitted:  {StatusProcessing, StatusReconciliationFailed},
	StatusProcessing: {StatusCompleted, StatusError, StatusReconciliationFailed},
}

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated,
		StatusUploading,
		StatusSubmitted,
		StatusProcessing,
		StatusCompleted,
		StatusError,
		StatusReconciliationFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusReconciliationFailed
}

// InFlight reports whether the remote side owns the document and it should be polled.
func (s Status) InFlight() bool {
	return s == StatusSubmitted || s == StatusProcessing
}

// RequiresRemoteID reports whether a document in s must carry a remote id.
func (s Status) RequiresRemoteID() bool {
	switch s {
	case StatusSubmitted, StatusProcessing, StatusCompleted, StatusReconciliationFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is directly reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseStatus maps a status name to a Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.IsValid()
}
