package call

import "github.com/pion/webrtc/v4"

// CandidateQueue buffers network candidates that arrive before a remote
// description exists. FIFO: candidates come back out of Drain in
// arrival order.
type CandidateQueue struct {
	items []webrtc.ICECandidateInit
}

// NewCandidateQueue returns an empty queue.
func NewCandidateQueue() *CandidateQueue {
	return &CandidateQueue{}
}

// Push appends a candidate to the back of the queue.
func (q *CandidateQueue) Push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

// Drain returns all queued candidates in arrival order and empties the
// queue. Candidates drained once are gone; a second Drain returns nil.
func (q *CandidateQueue) Drain() []webrtc.ICECandidateInit {
	items := q.items
	q.items = nil
	return items
}

// Clear discards everything without returning it.
func (q *CandidateQueue) Clear() {
	q.items = nil
}

// Len reports the number of buffered candidates.
func (q *CandidateQueue) Len() int {
	return len(q.items)
}
