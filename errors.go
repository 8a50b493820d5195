package batchring

import (
	"fmt"
)

var (
	ErrQueueIsFull     = fmt.Errorf("queue is full")
	ErrInvalidRollback = fmt.Errorf("invalid rollback")
	ErrInvalidCapacity = fmt.Errorf("capacity must be power of 2 and > 0")
	ErrInvalidIndex    = fmt.Errorf("index out of range")
)

func checkCapacity(capacity uint64) {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic(ErrInvalidCapacity)
	}
}

func checkCount(what string, n int) {
	if n <= 0 {
		panic(fmt.Errorf("%s must be > 0, got %d", what, n))
	}
}

func checkIndex(what string, i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Errorf("%w: %s %d not in [0, %d)", ErrInvalidIndex, what, i, n))
	}
}
