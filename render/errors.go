package render

import (
	"errors"
	"fmt"
)

// ErrTimeout is wrapped by render errors caused by a deadline.
var ErrTimeout = errors.New("render: timeout")

// Stage names the step of Render that failed.
type Stage string

const (
	StageLaunch      Stage = "launch"
	StageNavigate    Stage = "navigate"
	StageScroll      Stage = "scroll"
	StageWaitVisible Stage = "wait_visible"
	StageSettle      Stage = "settle"
	StageContent     Stage = "content"
)

// Error is a render failure. Screenshot is the path of the diagnostic
// capture, empty when none was written.
type Error struct {
	Stage      Stage
	URL        string
	Screenshot string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *Error) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }
