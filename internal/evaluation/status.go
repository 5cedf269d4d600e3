package evaluation

import (
	"fmt"
)

// Status is the sync state of a record. The zero value is invalid so an
// unset status is caught at decode time.
type Status uint8

const (
	// StatusLocal records were saved without any intention to sync
	StatusLocal Status = iota + 1
	// StatusQueued records should be pushed but have not been acknowledged
	StatusQueued
	// StatusFailed records exhausted their attempt budget on the last push
	StatusFailed
	// StatusSynced records were acknowledged by the remote registry
	StatusSynced
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusLocal, StatusQueued, StatusFailed, StatusSynced}

func (s Status) String() string {
	switch s {
	case StatusLocal:
		return "local"
	case StatusQueued:
		return "queued"
	case StatusFailed:
		return "failed"
	case StatusSynced:
		return "synced"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusLocal, StatusQueued, StatusFailed, StatusSynced:
		return true
	}
	return false
}

// Pushable reports whether a manual push may be started from s.
func (s Status) Pushable() bool {
	switch s {
	case StatusQueued, StatusFailed:
		return true
	case StatusLocal, StatusSynced:
		return false
	}
	return false
}

// ParseStatus converts the persisted name back into a Status.
func ParseStatus(name string) (Status, error) {
	for _, s := range Statuses {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown record status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot encode invalid record status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
