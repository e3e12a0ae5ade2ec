package vkswap

import "sync"

// GarbageQueue defers swapchain destruction one tick so in-flight
// commands referencing its images have a chance to finish, per spec
// §4.4: "destruction is deferred... gc_collect() is called at safe
// points (typically post-commit)". Owned by the compositor that creates
// swapchains.
type GarbageQueue struct {
	mu      sync.Mutex
	pending []*Native
}

// NewGarbageQueue returns an empty queue.
func NewGarbageQueue() *GarbageQueue { return &GarbageQueue{} }

// Enqueue appends a swapchain whose refcount has already dropped to zero
// (the caller must have gotten true back from Native.ReleaseRef).
func (q *GarbageQueue) Enqueue(n *Native) {
	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()
}

// Collect destroys every swapchain enqueued since the last Collect call,
// and clears the queue. Called once per safe point (typically
// post-commit), never mid-frame while a just-submitted command buffer
// might still reference an image from one of these swapchains.
func (q *GarbageQueue) Collect() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, n := range batch {
		n.destroy()
	}
	return len(batch)
}

// Pending reports how many swapchains are queued for destruction.
func (q *GarbageQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
