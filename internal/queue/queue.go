// Package queue owns backend occupancy and the FIFO wait queue. Both live
// behind one lock so that a disconnect and a promotion tick can never race
// into a double promotion or a lost occupancy decrement.
package queue

import "sync"

// Admission tracks how many connections hold a backend slot and which
// connection ids are waiting for one, in arrival order.
type Admission struct {
	mu        sync.Mutex
	capacity  int
	occupancy int
	waiting   []int64
}

func NewAdmission(capacity int) *Admission {
	return &Admission{capacity: capacity}
}

// TryAdmit claims a backend slot if one is free.
func (a *Admission) TryAdmit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.occupancy >= a.capacity {
		return false
	}
	a.occupancy++
	return true
}

// Release returns a claimed backend slot.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.occupancy > 0 {
		a.occupancy--
	}
}

// Enqueue appends the connection id and returns its 1-based position. An id
// already present keeps its position.
func (a *Admission) Enqueue(id int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, waiting := range a.waiting {
		if waiting == id {
			return i + 1
		}
	}
	a.waiting = append(a.waiting, id)
	return len(a.waiting)
}

// Remove deletes the id from the queue, reporting whether it was present.
func (a *Admission) Remove(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, waiting := range a.waiting {
		if waiting == id {
			a.waiting = append(a.waiting[:i], a.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the id's 1-based queue position and the queue length, or
// ok=false if the id is not queued (already promoted or removed).
func (a *Admission) Position(id int64) (pos, length int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, waiting := range a.waiting {
		if waiting == id {
			return i + 1, len(a.waiting), true
		}
	}
	return 0, len(a.waiting), false
}

// ReserveNext pops the queue head and claims a backend slot for it in one
// step. The caller must Release the slot if the promotion cannot proceed.
func (a *Admission) ReserveNext() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.occupancy >= a.capacity || len(a.waiting) == 0 {
		return 0, false
	}
	id := a.waiting[0]
	a.waiting = a.waiting[1:]
	a.occupancy++
	return id, true
}

// Occupancy returns the number of connections currently holding slots.
func (a *Admission) Occupancy() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.occupancy
}

// QueueLength returns the number of waiting connections.
func (a *Admission) QueueLength() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiting)
}

// Capacity returns the configured backend capacity.
func (a *Admission) Capacity() int {
	return a.capacity
}
