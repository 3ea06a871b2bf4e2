package provision

import "github.com/megaguards/mg-setup/internal/utils/logger"

// State is the position of one artifact in an Ensure call.
type State int

const (
	Unknown State = iota
	Checking
	Satisfied
	Missing
	Fetching
	Verifying
	Extracting
	Recording
	Failed
)

var stateNames = [...]string{
	Unknown:    "UNKNOWN",
	Checking:   "CHECKING",
	Satisfied:  "SATISFIED",
	Missing:    "MISSING",
	Fetching:   "FETCHING",
	Verifying:  "VERIFYING",
	Extracting: "EXTRACTING",
	Recording:  "RECORDING",
	Failed:     "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "INVALID"
	}
	return stateNames[s]
}

// Observer is told about every state transition of every artifact.
type Observer func(artifact string, from, to State)

// tracker walks one artifact through the state machine.
type tracker struct {
	e     *Engine
	name  string
	state State
}

func (t *tracker) to(next State) {
	prev := t.state
	t.state = next
	logger.Logger().Debugf("%s: %s -> %s", t.name, prev, next)
	if t.e.Observer != nil {
		t.e.Observer(t.name, prev, next)
	}
}

// fail moves to Failed and passes err through.
func (t *tracker) fail(err error) error {
	t.to(Failed)
	return err
}
