package app

import (
	"sync"

	"github.com/dkeye/connecto/internal/domain"
)

// Queue is the FIFO wait list for random matching. Strict arrival order is
// the required tie-break: the partner picked is always the longest-waiting
// eligible identity, which keeps matching auditable.
type Queue struct {
	mu      sync.Mutex
	order   []domain.UserID
	waiting map[domain.UserID]struct{}
}

func NewQueue() *Queue {
	return &Queue{waiting: make(map[domain.UserID]struct{})}
}

// Enqueue appends id unless it is already waiting.
func (q *Queue) Enqueue(id domain.UserID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waiting[id]; ok {
		return
	}
	q.order = append(q.order, id)
	q.waiting[id] = struct{}{}
}

// Remove deletes id from the queue. No-op when id is not waiting.
func (q *Queue) Remove(id domain.UserID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waiting[id]; !ok {
		return
	}
	delete(q.waiting, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// PopNext removes and returns the oldest waiting identity other than
// excluding. A self-pop is skipped in place, never returned and never
// re-ordered, so the requester keeps its queue position.
func (q *Queue) PopNext(excluding domain.UserID) (domain.UserID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.order {
		if v == excluding {
			continue
		}
		q.order = append(q.order[:i], q.order[i+1:]...)
		delete(q.waiting, v)
		return v, true
	}
	return "", false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
