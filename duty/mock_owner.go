package duty

import (
	"context"

	"github.com/bridge-node/vault-bridge/txgraph"
)

// MockOwner is a minimal hand-rolled test double implementing Owner,
// grounded on the teacher's services/validator.MockValidatorClient
// (a queued-errors-plus-recorded-calls mock, not a generated one).
type MockOwner struct {
	Graphs map[txgraph.KickoffId]*txgraph.Graph
	Errors []error

	Handled []Duty
}

// NewMockOwner returns a MockOwner with no pre-seeded graphs.
func NewMockOwner() *MockOwner {
	return &MockOwner{Graphs: make(map[txgraph.KickoffId]*txgraph.Graph)}
}

func (m *MockOwner) nextError() error {
	if len(m.Errors) == 0 {
		return nil
	}
	err := m.Errors[0]
	m.Errors = m.Errors[1:]
	return err
}

func (m *MockOwner) CreateTxHandlers(_ context.Context, kickoffID txgraph.KickoffId) (*txgraph.Graph, error) {
	if err := m.nextError(); err != nil {
		return nil, err
	}
	return m.Graphs[kickoffID], nil
}

func (m *MockOwner) HandleDuty(_ context.Context, d Duty) error {
	if err := m.nextError(); err != nil {
		return err
	}
	m.Handled = append(m.Handled, d)
	return nil
}
