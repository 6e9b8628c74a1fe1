package bus

import (
	"container/heap"

	"github.com/prismbot/prism/pkg/models"
)

// eventQueue is a min-heap ordered by effective priority, then emission
// sequence (FIFO within equal priority).
type eventQueue []models.Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	pi, pj := q[i].EffectivePriority(), q[j].EffectivePriority()
	if pi != pj {
		return pi < pj
	}
	return q[i].Seq < q[j].Seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(models.Event))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

func (q *eventQueue) push(ev models.Event) {
	heap.Push(q, ev)
}

func (q *eventQueue) pop() models.Event {
	return heap.Pop(q).(models.Event)
}
