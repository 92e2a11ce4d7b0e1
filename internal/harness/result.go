// internal/harness/result.go
package harness

import (
	"fmt"
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// Code is the verdict of one check.
type Code uint8

const (
	Pass Code = iota
	Fail
	NotApplicable
	// Presumed: the device acknowledged but the effect could not be observed.
	Presumed
	// Refused: the device answered Feature Abort [Refused] or [Incorrect Mode].
	Refused
)

var codeNames = [...]string{
	Pass:          "pass",
	Fail:          "fail",
	NotApplicable: "n/a",
	Presumed:      "presumed",
	Refused:       "refused",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// FromResult classifies one directed exchange.
func FromResult(res transport.Result) Code {
	switch res.Outcome {
	case transport.OutcomeReplied:
		return Pass
	case transport.OutcomeOK:
		return Presumed
	case transport.OutcomeFeatureAborted:
		switch res.Reason {
		case cec.AbortUnrecognizedOp:
			return NotApplicable
		case cec.AbortRefused, cec.AbortIncorrectMode:
			return Refused
		}
		return Fail
	default:
		return Fail
	}
}

// Result is one check run against one target.
type Result struct {
	Check    string        `json:"check"`
	Target   string        `json:"target,omitempty"`
	Code     Code          `json:"result"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is the outcome of a whole run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
	Warnings int       `json:"warnings"`
}

// Count returns how many results carry c.
func (r Report) Count(c Code) int {
	n := 0
	for _, res := range r.Results {
		if res.Code == c {
			n++
		}
	}
	return n
}

// Passed is true when no check failed.
func (r Report) Passed() bool { return r.Count(Fail) == 0 }
