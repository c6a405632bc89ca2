package novel

import (
	"encoding/json"
	"fmt"
)

// Status tracks the lifecycle of a chapter or paragraph.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusCompleted
	StatusError
)

var statusNames = map[Status]string{
	StatusNotStarted: "not_started",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
	StatusError:      "error",
}

var statusValues = map[string]Status{
	"not_started": StatusNotStarted,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
	"error":       StatusError,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON serializes the status as its string name. The integer
// representation never reaches the persistence boundary.
func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := statusValues[name]
	if !ok {
		return fmt.Errorf("unknown status %q", name)
	}
	*s = v
	return nil
}
