// Package fee implements the marginal-cost fee model used by the
// payment planner: a flat per-action grouped charge, computed from the
// number of distinct transparent/Sapling-like/Orchard-like actions a
// transaction touches.
package fee

import (
	"github.com/sirupsen/logrus"
)

// MarginalFee is the fee charged per logical action group.
const MarginalFee = 5_000

// Manager accumulates the input/output counts for the three pools and
// reports the marginal cost of the next action to add.
//
// The zero value is ready to use (no inputs, no outputs, zero fee).
type Manager struct {
	numInputs  [3]uint8
	numOutputs [3]uint8
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{}
}

// AddInput records one more input in pool and returns the marginal fee
// increase it caused.
func (m *Manager) AddInput(pool uint8) uint64 {
	before := m.Fee()
	m.numInputs[pool]++
	return m.Fee() - before
}

// AddOutput records one more output in pool and returns the marginal fee
// increase it caused.
func (m *Manager) AddOutput(pool uint8) uint64 {
	before := m.Fee()
	m.numOutputs[pool]++
	return m.Fee() - before
}

// Fee returns the current total fee for the accumulated action counts.
//
// Each pool contributes max(inputs, outputs) actions, except: the
// transparent pool has no minimum padding, the Sapling-like pool pads
// its output count to at least 2 only when it has at least one input
// (padding nothing when it has outputs but no inputs), and the
// Orchard-like pool pads both input and output counts to at least 2
// whenever either is nonzero. This asymmetry between the Sapling-like
// and Orchard-like padding rules is carried over unchanged from the
// reference fee model rather than normalized, since normalizing it
// would change fee totals for mixed-pool transactions that already
// shipped under the old rule.
func (m *Manager) Fee() uint64 {
	t := max8(m.numInputs[0], m.numOutputs[0])

	var s uint8
	{
		o := m.numOutputs[1]
		if m.numInputs[1] > 0 {
			o = max8(o, 2)
		}
		s = max8(m.numInputs[1], o)
	}

	var o uint8
	if m.numInputs[2] > 0 || m.numOutputs[2] > 0 {
		o = max8(max8(m.numInputs[2], m.numOutputs[2]), 2)
	}

	actions := t + s + o
	logrus.WithFields(logrus.Fields{
		"t": t, "s": s, "o": o, "actions": actions,
	}).Debug("fee actions")
	return uint64(actions) * MarginalFee
}

func max8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}
