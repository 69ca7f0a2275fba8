package batch

import (
	"time"

	"github.com/ksm-android/resultmail/pkg/resultmail/output"
)

// State is a step of a run.
type State string

const (
	StateInit            State = "Init"
	StateLoadCredentials State = "LoadCredentials"
	StateLoadTable       State = "LoadTable"
	StateSending         State = "Sending"
	StateDone            State = "Done"

	// StateCancelled ends a run whose context was cancelled mid-loop.
	StateCancelled State = "Cancelled"
)

// Stage names where a recipient failed.
const (
	StageRender   = "render"
	StageTransmit = "transmit"
)

// Outcome is the result for one table row.
type Outcome struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Sent  bool   `json:"sent" yaml:"sent"`
	Stage string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarizes a run. State is the last state reached; a run that
// stopped early never reaches StateDone.
type Report struct {
	RunID      string    `json:"runId" yaml:"runId"`
	Variant    string    `json:"variant" yaml:"variant"`
	Source     string    `json:"source" yaml:"source"`
	State      State     `json:"state" yaml:"state"`
	StartedAt  time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finishedAt"`
	Outcomes   []Outcome `json:"outcomes" yaml:"outcomes"`
	Sent       int       `json:"sent" yaml:"sent"`
	Failed     int       `json:"failed" yaml:"failed"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Sent {
		r.Sent++
	} else {
		r.Failed++
	}
}

// Rows converts the outcomes for the summary table.
func (r *Report) Rows() []output.OutcomeRow {
	rows := make([]output.OutcomeRow, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		reason := o.Error
		if o.Stage != "" && reason != "" {
			reason = o.Stage + ": " + reason
		}
		rows = append(rows, output.OutcomeRow{
			Index:  o.Index,
			Email:  o.Email,
			Name:   o.Name,
			Sent:   o.Sent,
			Reason: reason,
		})
	}
	return rows
}
