// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/topology"
)

// Plan is the fully-built status export plan.
type Plan struct {
	Endpoint string
	UnitID   uint8
	// BaseSlot is the first block; logical address la lives at block BaseSlot+la.
	BaseSlot uint16
}

// Writer exports one table snapshot.
type Writer interface {
	Write(recs []topology.Record, now time.Time) error
}
