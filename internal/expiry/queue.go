package expiry

import "time"

type registration struct {
	id        string
	deadline  time.Time
	onDestroy Callback
	index     int
}

// deadlineQueue is a min-heap on deadline, used through container/heap.
type deadlineQueue []*registration

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	return q[i].deadline.Before(q[j].deadline)
}

func (q deadlineQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *deadlineQueue) Push(x any) {
	r := x.(*registration)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}
