//go:build !linux

package main

// pin is a no-op where thread affinity is not supported.
func (b *bench) pin(int) {}
