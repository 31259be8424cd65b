package hilt

import (
	"sync"

	"warrior/internal/domain"
)

// Allocator hands out the tester's bounded pool of PWM channels to pins.
// Each channel is assigned to at most one pin at a time.
type Allocator struct {
	mu       sync.Mutex
	size     int
	assigned map[PinID]int
}

// NewAllocator creates an allocator over channels 0..size-1.
func NewAllocator(size int) *Allocator {
	return &Allocator{size: size, assigned: make(map[PinID]int)}
}

// Allocate returns the channel held by id, assigning the lowest free channel
// if it holds none. It fails with domain.ErrPWMExhausted when every channel is taken.
func (a *Allocator) Allocate(id PinID) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ch, ok := a.assigned[id]; ok {
		return ch, nil
	}
	used := make([]bool, a.size)
	for _, ch := range a.assigned {
		used[ch] = true
	}
	for ch, taken := range used {
		if !taken {
			a.assigned[id] = ch
			return ch, nil
		}
	}
	return 0, domain.ErrPWMExhausted
}

// Release frees any channel held by id. Releasing an unassigned pin is a no-op.
func (a *Allocator) Release(id PinID) {
	a.mu.Lock()
	delete(a.assigned, id)
	a.mu.Unlock()
}

// Channel reports the channel currently held by id.
func (a *Allocator) Channel(id PinID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.assigned[id]
	return ch, ok
}

// InUse returns the number of assigned channels.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.assigned)
}
