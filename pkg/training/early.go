package training

import (
	"math"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/nn"
)

// Checkpointer is a model whose weights can be snapshotted and restored.
// *nn.Model implements it.
type Checkpointer interface {
	Snapshot() nn.Snapshot
	Restore(nn.Snapshot) error
}

// EarlyStopping tracks the best value of a monitored metric (higher is
// better) and keeps a deep copy of the weights that produced it.
//
// Patience is the number of consecutive non-improving epochs tolerated:
// with Patience 2, training stops on the third stalled epoch in a row.
type EarlyStopping struct {
	Patience int

	best    float64
	bestAt  int
	epochs  int
	stalled int
	weights nn.Snapshot
}

// NewEarlyStopping returns a tracker with no best value yet.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience, best: math.Inf(-1)}
}

// Check records value for the current epoch and reports whether training
// should stop. A strictly greater value is an improvement and snapshots
// m.
func (e *EarlyStopping) Check(m Checkpointer, value float64) bool {
	e.epochs++
	if value > e.best {
		e.best = value
		e.bestAt = e.epochs
		e.stalled = 0
		e.weights = m.Snapshot()
		return false
	}
	e.stalled++
	return e.stalled > e.Patience
}

// Best returns the best value seen and the 1-based epoch it was seen in.
// The epoch is 0 before the first Check.
func (e *EarlyStopping) Best() (value float64, epoch int) {
	return e.best, e.bestAt
}

// Restore loads the best snapshot into m. It is a no-op before the first
// Check.
func (e *EarlyStopping) Restore(m Checkpointer) error {
	if e.weights == nil {
		return nil
	}
	return m.Restore(e.weights)
}
