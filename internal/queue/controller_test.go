package queue

import (
	"testing"

	"github.com/sirupsen/logrus"
)

type fakePromoter struct {
	promoted []int64
	accept   func(id int64) bool
}

func (f *fakePromoter) Promote(id int64) bool {
	f.promoted = append(f.promoted, id)
	return f.accept(id)
}

func TestTickPromotesUpToCapacity(t *testing.T) {
	a := NewAdmission(2)
	for _, id := range []int64{10, 11, 12} {
		a.Enqueue(id)
	}

	promoter := &fakePromoter{accept: func(int64) bool { return true }}
	c := &Controller{Admission: a, Promoter: promoter, Logger: logrus.New()}
	c.tick()

	if len(promoter.promoted) != 2 || promoter.promoted[0] != 10 || promoter.promoted[1] != 11 {
		t.Fatalf("promoted %v, want [10 11]", promoter.promoted)
	}
	if a.Occupancy() != 2 {
		t.Errorf("Occupancy() = %d, want 2", a.Occupancy())
	}
	if a.QueueLength() != 1 {
		t.Errorf("QueueLength() = %d, want 1", a.QueueLength())
	}
}

func TestTickReturnsSlotForStaleConnections(t *testing.T) {
	a := NewAdmission(1)
	a.Enqueue(10)
	a.Enqueue(11)

	// The first head no longer resolves to a live connection.
	promoter := &fakePromoter{accept: func(id int64) bool { return id != 10 }}
	c := &Controller{Admission: a, Promoter: promoter, Logger: logrus.New()}
	c.tick()

	if len(promoter.promoted) != 2 {
		t.Fatalf("promoted %v, want the stale head skipped and the next taken", promoter.promoted)
	}
	if a.Occupancy() != 1 {
		t.Errorf("Occupancy() = %d, want 1", a.Occupancy())
	}
	if a.QueueLength() != 0 {
		t.Errorf("QueueLength() = %d, want 0", a.QueueLength())
	}
}
