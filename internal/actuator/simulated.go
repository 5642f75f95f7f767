package actuator

import (
	"context"
	"sync"
	"time"
)

// Simulated is an in-memory stepper. SetTarget only records the target; the
// position follows when Step or Run is driven.
type Simulated struct {
	mu       sync.Mutex
	target   int32
	position int32
}

func NewSimulated(position int32) *Simulated {
	return &Simulated{target: position, position: position}
}

func (s *Simulated) SetTarget(target int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
}

func (s *Simulated) CurrentPosition() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Simulated) Target() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SetPosition moves the simulated shaft instantly, as a homing routine would.
func (s *Simulated) SetPosition(position int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
}

// Step moves at most maxSteps toward the target and reports whether it is there.
func (s *Simulated) Step(maxSteps int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := s.target - s.position
	switch {
	case delta > maxSteps:
		delta = maxSteps
	case delta < -maxSteps:
		delta = -maxSteps
	}
	s.position += delta
	return s.position == s.target
}

// Run steps the simulation every interval until ctx is done.
func (s *Simulated) Run(ctx context.Context, interval time.Duration, stepsPerTick int32) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(stepsPerTick)
		}
	}
}
