package models

import (
	"fmt"
)

// Status represents verdict of check or simulation.
//
// Statuses form lattice PASS < WARN < FAIL.
type Status int

const (
	// PassStatus means that no issues were found.
	PassStatus Status = 0
	// WarnStatus means that non-fatal issues were found.
	WarnStatus Status = 1
	// FailStatus means that fatal issues were found.
	FailStatus Status = 2
)

// String returns string representation.
func (s Status) String() string {
	switch s {
	case PassStatus:
		return "PASS"
	case WarnStatus:
		return "WARN"
	case FailStatus:
		return "FAIL"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// MarshalText marshals status to text.
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case PassStatus, WarnStatus, FailStatus:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown status: %d", s)
	}
}

// UnmarshalText unmarshals status from text.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PASS":
		*s = PassStatus
	case "WARN":
		*s = WarnStatus
	case "FAIL":
		*s = FailStatus
	default:
		return fmt.Errorf("unknown status: %q", text)
	}
	return nil
}

// Join returns the worst of two statuses.
func (s Status) Join(o Status) Status {
	if o > s {
		return o
	}
	return s
}

// CheckStatus represents status of single check stage.
type CheckStatus string

const (
	// CheckPassed means that stage found no issues.
	CheckPassed CheckStatus = "PASS"
	// CheckWarned means that stage found non-fatal issues.
	CheckWarned CheckStatus = "WARN"
	// CheckFailed means that stage found issues.
	CheckFailed CheckStatus = "FAIL"
	// CheckSkipped means that stage had nothing to check.
	CheckSkipped CheckStatus = "N/A"
)
