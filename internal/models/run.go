package models

import (
	"fmt"
	"time"
)

// RunKind represents kind of run.
type RunKind int

const (
	// CheckRun represents submission analysis.
	CheckRun RunKind = 1
	// SimulationRun represents simulation session.
	SimulationRun RunKind = 2
)

// String returns string representation.
func (k RunKind) String() string {
	switch k {
	case CheckRun:
		return "check"
	case SimulationRun:
		return "simulation"
	default:
		return fmt.Sprintf("RunKind(%d)", k)
	}
}

// MarshalText marshals kind to text.
func (k RunKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RunInfo represents active run.
type RunInfo struct {
	ID        string    `json:"id"`
	Kind      RunKind   `json:"kind"`
	StartTime time.Time `json:"start_time"`
}

// TickOutcome represents outcome of single telemetry poll.
type TickOutcome string

const (
	// TickConfirmed means that live data was observed.
	TickConfirmed TickOutcome = "confirmed"
	// TickUnconfirmed means that query returned without live data.
	TickUnconfirmed TickOutcome = "unconfirmed"
	// TickTimeout means that query did not finish in time.
	TickTimeout TickOutcome = "timeout"
	// TickError means that query tool could not be invoked.
	TickError TickOutcome = "error"
)

// TickResult represents result of single telemetry poll.
type TickResult struct {
	Index   int         `json:"index"`
	// Offset contains seconds since start of monitored window.
	Offset  float64     `json:"offset"`
	Outcome TickOutcome `json:"outcome"`
	Message string      `json:"message,omitempty"`
}

// SimulationResult represents result of simulation session.
type SimulationResult struct {
	RunID          string       `json:"run_id"`
	Status         Status       `json:"status"`
	MotionDetected bool         `json:"motion_detected"`
	Ticks          []TickResult `json:"ticks"`
}
