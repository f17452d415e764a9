package queue

import "errors"

var (
	ErrEmptyQueue       = errors.New("queue: queue id must not be empty")
	ErrInvalidQueueName = errors.New("queue: invalid queue name")
	ErrEmptyBody        = errors.New("queue: body must not be empty")
	ErrInvalidBody      = errors.New("queue: body must not contain line breaks")
	ErrEmptyReceipt     = errors.New("queue: receipt id must not be empty")
)
