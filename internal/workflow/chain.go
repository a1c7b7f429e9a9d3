package workflow

import (
	"strings"

	"github.com/pkg/errors"
)

// dynamic marks a parameter value that Step Functions resolves at run time.
// Its key is rendered with a ".$" suffix.
type dynamic string

// Path references a field of the state input, e.g. Path("$.media_file_uri").
func Path(p string) interface{} {
	return dynamic(p)
}

// UUID is the States.UUID() intrinsic; it yields a fresh v4 UUID per evaluation.
func UUID() interface{} {
	return dynamic("States.UUID()")
}

// Step is a state under construction.
type Step struct {
	name  string
	state State
}

// NewPass returns a state that forwards its input unchanged.
func NewPass(name string) *Step {
	return &Step{name: name, state: State{Type: TypePass}}
}

// NewTask returns a task state calling resource with params.
func NewTask(name, resource string, params map[string]interface{}) *Step {
	return &Step{
		name: name,
		state: State{
			Type:       TypeTask,
			Resource:   resource,
			Parameters: renderParameters(params),
		},
	}
}

// Comment sets the state comment.
func (s *Step) Comment(c string) *Step {
	s.state.Comment = c
	return s
}

// Retry appends a retrier to the state.
func (s *Step) Retry(r Retrier) *Step {
	s.state.Retry = append(s.state.Retry, r)
	return s
}

// Name returns the state name.
func (s *Step) Name() string {
	return s.name
}

// Chain is a linear sequence of steps.
type Chain struct {
	steps []*Step
}

// Start begins a chain at s.
func Start(s *Step) *Chain {
	return &Chain{steps: []*Step{s}}
}

// Next appends s after the last step of the chain.
func (c *Chain) Next(s *Step) *Chain {
	c.steps = append(c.steps, s)
	return c
}

// Definition links the chain and returns the resulting document. The last
// step is the terminal state.
func (c *Chain) Definition(comment string) (Definition, error) {
	def := Definition{
		Comment: comment,
		StartAt: c.steps[0].name,
		States:  make(map[string]State, len(c.steps)),
	}
	for i, s := range c.steps {
		if _, dup := def.States[s.name]; dup {
			return Definition{}, errors.Errorf("duplicate state name %q", s.name)
		}
		st := s.state
		if i == len(c.steps)-1 {
			st.End = true
		} else {
			st.Next = c.steps[i+1].name
		}
		def.States[s.name] = st
	}
	return def, def.Validate()
}

func renderParameters(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		switch v := v.(type) {
		case dynamic:
			out[strings.TrimSuffix(k, ".$")+".$"] = string(v)
		case map[string]interface{}:
			out[k] = renderParameters(v)
		default:
			out[k] = v
		}
	}
	return out
}
