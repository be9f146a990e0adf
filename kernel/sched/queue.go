package sched

// readyQueue is an intrusive FIFO of threads at one priority level.
// A thread is linked into at most one queue at a time; its queue field
// points back here while linked.
type readyQueue struct {
	head *Thread
	tail *Thread
	size int
}

func (q *readyQueue) empty() bool { return q.head == nil }

// push appends t at the tail.
func (q *readyQueue) push(t *Thread) {
	t.next = nil
	t.queue = q
	if q.tail == nil {
		q.head = t
	} else {
		q.tail.next = t
	}
	q.tail = t
	q.size++
}

// pop removes and returns the head, or nil when empty.
func (q *readyQueue) pop() *Thread {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.next
	if q.head == nil {
		q.tail = nil
	}
	t.next = nil
	t.queue = nil
	q.size--
	return t
}

// remove unlinks t from anywhere in the queue.
func (q *readyQueue) remove(t *Thread) bool {
	var prev *Thread
	for cur := q.head; cur != nil; cur = cur.next {
		if cur != t {
			prev = cur
			continue
		}
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}
		if q.tail == cur {
			q.tail = prev
		}
		t.next = nil
		t.queue = nil
		q.size--
		return true
	}
	return false
}
