//go:build deadlock

// Package sync aliases the synchronisation primitives used by the gateway so
// that builds tagged with "deadlock" swap them for go-deadlock's detecting
// implementations.
package sync

import (
	"github.com/sasha-s/go-deadlock"
)

type (
	Mutex     = deadlock.Mutex
	RWMutex   = deadlock.RWMutex
	Once      = deadlock.Once
	WaitGroup = deadlock.WaitGroup
)
