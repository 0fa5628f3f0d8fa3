package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrQueueFull = errors.New("queue is full")
	ErrClosed    = errors.New("queue closed")
	ErrDuplicate = errors.New("video already pending")
	ErrEmptyKey  = errors.New("job has no video url")
)
