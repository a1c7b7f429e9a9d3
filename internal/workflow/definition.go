// Package workflow builds Amazon States Language definitions.
package workflow

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// State types used by the pipeline.
const (
	TypePass = "Pass"
	TypeTask = "Task"
)

const maxStateNameLen = 80

// Definition is a state machine document.
type Definition struct {
	Comment        string           `json:"Comment,omitempty"`
	StartAt        string           `json:"StartAt"`
	TimeoutSeconds int              `json:"TimeoutSeconds,omitempty"`
	States         map[string]State `json:"States"`
}

// State is a single node of the graph.
type State struct {
	Type       string                 `json:"Type"`
	Comment    string                 `json:"Comment,omitempty"`
	Resource   string                 `json:"Resource,omitempty"`
	Parameters map[string]interface{} `json:"Parameters,omitempty"`
	Retry      []Retrier              `json:"Retry,omitempty"`
	Next       string                 `json:"Next,omitempty"`
	End        bool                   `json:"End,omitempty"`
}

// Retrier is an entry of a task's Retry list.
type Retrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds,omitempty"`
	MaxAttempts     int      `json:"MaxAttempts"`
	BackoffRate     float64  `json:"BackoffRate,omitempty"`
}

// Validate checks that the document is a well formed graph: a known start
// state, resolvable transitions, no unreachable states and at least one
// terminal state.
func (d Definition) Validate() error {
	if len(d.States) == 0 {
		return errors.New("definition has no states")
	}
	if _, ok := d.States[d.StartAt]; !ok {
		return errors.Errorf("start state %q is not defined", d.StartAt)
	}

	terminal := 0
	for _, name := range d.stateNames() {
		st := d.States[name]
		if len(name) == 0 || len(name) > maxStateNameLen {
			return errors.Errorf("state name %q must be 1-%d characters", name, maxStateNameLen)
		}
		switch st.Type {
		case TypePass:
		case TypeTask:
			if st.Resource == "" {
				return errors.Errorf("task state %q has no resource", name)
			}
		default:
			return errors.Errorf("state %q has unsupported type %q", name, st.Type)
		}
		if st.End == (st.Next != "") {
			return errors.Errorf("state %q must have exactly one of Next or End", name)
		}
		if st.End {
			terminal++
			continue
		}
		if _, ok := d.States[st.Next]; !ok {
			return errors.Errorf("state %q transitions to undefined state %q", name, st.Next)
		}
	}
	if terminal == 0 {
		return errors.New("definition has no terminal state")
	}

	reached := map[string]bool{}
	for name := d.StartAt; name != "" && !reached[name]; name = d.States[name].Next {
		reached[name] = true
	}
	for _, name := range d.stateNames() {
		if !reached[name] {
			return errors.Errorf("state %q is unreachable from %q", name, d.StartAt)
		}
	}
	return nil
}

// JSON renders the definition after validating it.
func (d Definition) JSON() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal definition")
	}
	return string(b), nil
}

func (d Definition) stateNames() []string {
	names := make([]string, 0, len(d.States))
	for name := range d.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
