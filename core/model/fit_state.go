package model

import (
	"sync"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// StateManager は Fit 済みかどうかと学習時の形状を保持する。
// gobで所有者ごと保存されるようフィールドは公開している。ロックは保存されない。
type StateManager struct {
	mu sync.RWMutex

	Fitted    bool
	NFeatures int
	NSamples  int
}

// NewStateManager returns an unfitted state.
func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted records the shape of the data Fit saw.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	s.Fitted, s.NFeatures, s.NSamples = true, nFeatures, nSamples
	s.mu.Unlock()
}

func (s *StateManager) Reset() {
	s.mu.Lock()
	s.Fitted, s.NFeatures, s.NSamples = false, 0, 0
	s.mu.Unlock()
}

// Shape returns the feature and sample counts recorded by SetFitted.
func (s *StateManager) Shape() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted fails with a NotFittedError until SetFitted is called.
func (s *StateManager) RequireFitted(owner, method string) error {
	if s.IsFitted() {
		return nil
	}
	return errors.NewNotFittedError(owner, method)
}

// RequireFeatures fails with a DimensionError on axis 1 when cols differs
// from the fitted width.
func (s *StateManager) RequireFeatures(op string, cols int) error {
	want, _ := s.Shape()
	if want == cols {
		return nil
	}
	return errors.NewDimensionError(op, want, cols, 1)
}
