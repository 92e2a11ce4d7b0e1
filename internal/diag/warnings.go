// internal/diag/warnings.go
package diag

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Warnings logs protocol warnings and counts them.
// One instance per engine or test run; never package-level.
type Warnings struct {
	log zerolog.Logger
	n   atomic.Int64
}

func NewWarnings(log zerolog.Logger) *Warnings {
	return &Warnings{log: log}
}

// Warnf logs at warn level and bumps the counter.
func (w *Warnings) Warnf(format string, args ...any) {
	w.n.Add(1)
	w.log.Warn().Msg(fmt.Sprintf(format, args...))
}

// Count returns the number of warnings so far.
func (w *Warnings) Count() int { return int(w.n.Load()) }

// Reset zeroes the counter and returns the previous value.
func (w *Warnings) Reset() int { return int(w.n.Swap(0)) }
