package domain

import (
	"fmt"
	"strings"
)

// ExtractionState is the last known state of an iModel's extraction run.
type ExtractionState string

const (
	StateNone      ExtractionState = "None"
	StateQueued    ExtractionState = "Queued"
	StateRunning   ExtractionState = "Running"
	StateSucceeded ExtractionState = "Succeeded"
	StateFailed    ExtractionState = "Failed"
)

// severity ranks states for report aggregation; higher wins.
var severity = map[ExtractionState]int{
	StateNone:      0,
	StateSucceeded: 1,
	StateRunning:   2,
	StateQueued:    3,
	StateFailed:    4,
}

// ParseExtractionState maps an API state string onto ExtractionState.
// Matching is case-insensitive.
func ParseExtractionState(s string) (ExtractionState, error) {
	for state := range severity {
		if strings.EqualFold(string(state), s) {
			return state, nil
		}
	}
	return StateNone, fmt.Errorf("unknown extraction state %q", s)
}

// IsRunState reports whether a run can be in state s. None only means that
// no run was started.
func (s ExtractionState) IsRunState() bool {
	switch s {
	case StateQueued, StateRunning, StateSucceeded, StateFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further polling is needed for the run.
func (s ExtractionState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Severity returns the aggregation rank of s.
// Failed > Queued > Running > Succeeded > None.
func (s ExtractionState) Severity() int {
	return severity[s]
}

func (s ExtractionState) String() string {
	return string(s)
}

// AggregateStates reduces the states of a report's iModels to the most
// alarming one.
//
// An empty list yields StateFailed. Callers that need "no known run" must
// check membership before aggregating.
func AggregateStates(states []ExtractionState) ExtractionState {
	if len(states) == 0 {
		return StateFailed
	}

	worst := states[0]
	for _, s := range states[1:] {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}
