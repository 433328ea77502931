package eventbus

import "errors"

var (
	ErrClosed    = errors.New("eventbus: closed")
	ErrQueueFull = errors.New("eventbus: partition queue is full")
)

// Event is one published message. Events with the same Key are delivered in
// publish order.
type Event struct {
	Topic   string      `json:"topic"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
}

// Handler processes one event.
type Handler func(event *Event) error

// partition is one ordered delivery queue with its own consumer goroutine.
type partition struct {
	id    int
	queue chan *Event
}
