//go:build !deadlock

// Package sync aliases the synchronisation primitives used by the gateway so
// that builds tagged with "deadlock" swap them for go-deadlock's detecting
// implementations.
package sync

import "sync"

type (
	Mutex     = sync.Mutex
	RWMutex   = sync.RWMutex
	Once      = sync.Once
	WaitGroup = sync.WaitGroup
)
