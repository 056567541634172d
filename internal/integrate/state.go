package integrate

import (
	"time"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/vision"
)

// State is the stage an analysis request has reached
type State string

const (
	StateReceived      State = "RECEIVED"
	StateVisionDone    State = "VISION_DONE"
	StateNormativeDone State = "NORMATIVE_DONE"
	StateIntegrated    State = "INTEGRATED"
	StateFailed        State = "FAILED"
)

var transitions = map[State]State{
	StateReceived:      StateVisionDone,
	StateVisionDone:    StateNormativeDone,
	StateNormativeDone: StateIntegrated,
}

// Transition is one recorded state change
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Analysis tracks a single request through the pipeline. It is owned by one
// goroutine and is not safe for concurrent use.
type Analysis struct {
	ID   string
	Type model.InstallationType

	Raw      *vision.RawAnalysis
	Findings []model.Finding
	Report   *model.AnalysisReport

	state   State
	history []Transition
	err     error
	now     func() time.Time
}

func newAnalysis(id string, it model.InstallationType, now func() time.Time) *Analysis {
	return &Analysis{ID: id, Type: it, state: StateReceived, now: now}
}

// State returns the current state
func (a *Analysis) State() State {
	return a.state
}

// History returns the transitions taken so far
func (a *Analysis) History() []Transition {
	out := make([]Transition, len(a.history))
	copy(out, a.history)
	return out
}

// Err returns the error that moved the analysis to FAILED
func (a *Analysis) Err() error {
	return a.err
}

func (a *Analysis) advance(to State) error {
	if next, ok := transitions[a.state]; !ok || next != to {
		return model.Errorf(model.KindInternal, "integrate", "illegal transition %s -> %s", a.state, to)
	}
	a.record(to)
	return nil
}

// fail moves the analysis to FAILED and returns err for convenience
func (a *Analysis) fail(err error) error {
	if a.state != StateFailed {
		a.record(StateFailed)
		a.err = err
	}
	return err
}

func (a *Analysis) record(to State) {
	a.history = append(a.history, Transition{From: a.state, To: to, At: a.now()})
	a.state = to
}
