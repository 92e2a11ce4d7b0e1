// internal/topology/table.go
package topology

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// Table holds one Record per logical address.
//
// Only the owning dispatch path mutates it; the RWMutex exists so the
// monitor and the status exporter can take snapshots from other goroutines.
type Table struct {
	mu   sync.RWMutex
	recs [cec.NumLogAddrs]*Record
	now  func() time.Time
}

func NewTable() *Table {
	return &Table{now: time.Now}
}

// SetClock replaces the time source used for LastSeen.
func (t *Table) SetClock(now func() time.Time) { t.now = now }

// Add creates the record for la if absent and marks it seen.
func (t *Table) Add(la cec.LogicalAddress, self bool) {
	if !la.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.ensureLocked(la)
	r.Self = self
	r.LastSeen = t.now()
	r.Misses = 0
}

// Remove forgets la entirely.
func (t *Table) Remove(la cec.LogicalAddress) {
	if !la.Valid() {
		return
	}
	t.mu.Lock()
	t.recs[la] = nil
	t.mu.Unlock()
}

// Get returns a copy of la's record.
func (t *Table) Get(la cec.LogicalAddress) (Record, bool) {
	if !la.Valid() {
		return Record{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := t.recs[la]
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// Update applies fn to la's record, creating it when absent.
func (t *Table) Update(la cec.LogicalAddress, fn func(r *Record)) {
	if !la.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.ensureLocked(la))
}

// Seen refreshes la's LastSeen if la is known.
func (t *Table) Seen(la cec.LogicalAddress) {
	if !la.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.recs[la]; r != nil {
		r.LastSeen = t.now()
		r.Misses = 0
	}
}

// Present returns the mask of known addresses.
func (t *Table) Present() cec.LogAddrMask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var m cec.LogAddrMask
	for la, r := range t.recs {
		if r != nil {
			m = m.With(cec.LogicalAddress(la))
		}
	}
	return m
}

// PhysAddrOf returns la's physical address or PhysAddrInvalid.
func (t *Table) PhysAddrOf(la cec.LogicalAddress) cec.PhysAddr {
	r, ok := t.Get(la)
	if !ok {
		return cec.PhysAddrInvalid
	}
	return r.PhysAddr
}

// Snapshot copies every known record in address order.
func (t *Table) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, cec.NumLogAddrs)
	for _, r := range t.recs {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (t *Table) ensureLocked(la cec.LogicalAddress) *Record {
	r := t.recs[la]
	if r == nil {
		r = newRecord(la, t.now())
		t.recs[la] = r
	}
	return r
}

// ---- OPCODE RECOGNITION ----

// MarkRecognized records that la understood op.
func (t *Table) MarkRecognized(la cec.LogicalAddress, op cec.Opcode) {
	t.Update(la, func(r *Record) { r.Recognized.Add(op) })
}

// MarkUnrecognized records that la rejected op as unknown.
func (t *Table) MarkUnrecognized(la cec.LogicalAddress, op cec.Opcode) {
	t.Update(la, func(r *Record) { r.Unrecognized.Add(op) })
}

// AddrOp names one opcode at one logical address.
type AddrOp struct {
	LA cec.LogicalAddress
	Op cec.Opcode
}

// InconsistentOpcodeError lists opcodes marked both recognized and unrecognized.
type InconsistentOpcodeError struct {
	Pairs []AddrOp
}

func (e *InconsistentOpcodeError) Error() string {
	parts := make([]string, 0, len(e.Pairs))
	for _, p := range e.Pairs {
		parts = append(parts, fmt.Sprintf("%s/%s", p.LA, p.Op))
	}
	return "topology: opcodes both recognized and unrecognized: " + strings.Join(parts, ", ")
}

// CheckConsistency returns *InconsistentOpcodeError when any address has an
// opcode in both sets.
func (t *Table) CheckConsistency() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var pairs []AddrOp
	for _, r := range t.recs {
		if r == nil {
			continue
		}
		for _, op := range r.Recognized.Intersect(r.Unrecognized) {
			pairs = append(pairs, AddrOp{LA: r.LA, Op: op})
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return &InconsistentOpcodeError{Pairs: pairs}
}
