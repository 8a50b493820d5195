//go:build linux

package main

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pin locks the calling goroutine to its OS thread and binds that thread
// to one CPU, chosen round-robin from the role index. The thread is never
// unlocked, so it exits together with the goroutine.
func (b *bench) pin(role int) {
	if !b.cfg.Pin {
		return
	}

	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(role % runtime.NumCPU())
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		b.logger.Warn("cpu pinning failed", zap.Int("role", role), zap.Error(err))
	}
}
