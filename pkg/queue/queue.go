package queue

// Queue represents a basic queue.
// Implementations must be thread-safe.
type Queue interface {
	// Enqueue adds an item to the end of the queue.
	Enqueue(item interface{}) error
	// ReadAllMessages removes and returns every pending item in order.
	ReadAllMessages() ([]interface{}, error)
	// Ready is signalled whenever items become available.
	Ready() <-chan struct{}
	Size() int
	ClearQueue()
}
