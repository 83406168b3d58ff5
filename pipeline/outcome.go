package pipeline

import (
	"time"

	"github.com/hazyhaar/stockwatch/stock"
)

// Outcome is the terminal state of a run.
type Outcome int

const (
	// Succeeded: rendered and extracted; entries processed regardless of
	// individual persist or notify results.
	Succeeded Outcome = iota
	FailedRender
	FailedExtraction
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case FailedRender:
		return "failed_render"
	case FailedExtraction:
		return "failed_extraction"
	}
	return "unknown"
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case Succeeded:
		return 0
	case FailedRender:
		return 2
	case FailedExtraction:
		return 3
	}
	return 1
}

// Report describes one run.
type Report struct {
	RunID      string
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time

	// Degraded is set when schema setup failed and persistence was
	// skipped for the run.
	Degraded bool

	Containers      int
	Extracted       int
	Skipped         int // partial containers
	Unrecognized    int // unknown rarity labels
	Baseline        int // dropped at the baseline tier
	Persisted       int
	PersistFailures int
	Alerted         int
	AlertFailures   int

	// Sightings are the retained entries in extraction order.
	Sightings []stock.Sighting

	// Err is the cause of a failed outcome.
	Err error
}
