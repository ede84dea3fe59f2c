package auth

import (
	"sync"
	"time"
)

// テスト用の進められる時計
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStepClock() *StepClock {
	return &StepClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var HashToken = hashToken
