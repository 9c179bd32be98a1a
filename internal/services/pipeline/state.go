package pipeline

import "fmt"

// State of one pipeline run
type State int

const (
	Received State = iota
	Extracting
	Normalizing
	ResolvingPrompt
	Summarizing
	Completed
	Failed
)

var stateNames = [...]string{
	Received:        "received",
	Extracting:      "extracting",
	Normalizing:     "normalizing",
	ResolvingPrompt: "resolving_prompt",
	Summarizing:     "summarizing",
	Completed:       "completed",
	Failed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText lets states appear by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// machine records the trace of a run and only moves forward
type machine struct {
	trace []State
}

func newMachine() *machine {
	return &machine{trace: []State{Received}}
}

func (m *machine) current() State {
	return m.trace[len(m.trace)-1]
}

// advance panics on a backward move or a move out of a terminal state;
// both are programming errors in the controller.
func (m *machine) advance(to State) {
	cur := m.current()
	if cur.Terminal() || to <= cur {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", cur, to))
	}
	m.trace = append(m.trace, to)
}

func (m *machine) states() []State {
	return append([]State(nil), m.trace...)
}
