package main

import (
	"sync"
	"time"
)

// PhaseScheduler drives automatic phase advancement. At most one timer is
// armed per room; arming a new one cancels whatever was pending. Every timer
// captures the room's phaseVersion at arm time, and the room bumps that
// counter on every transition, so a timer that outlives its phase fires as a
// no-op instead of double-processing a later round.
type PhaseScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer

	// afterExpire runs outside the room lock once an expiry has mutated
	// state, so the gateway can broadcast the result.
	afterExpire func(*Room)
}

func NewPhaseScheduler() *PhaseScheduler {
	return &PhaseScheduler{
		timers: make(map[string]*time.Timer),
	}
}

func (ps *PhaseScheduler) OnExpire(fn func(*Room)) {
	ps.afterExpire = fn
}

// Arm schedules expire to run against the room after d. The caller must hold
// the room lock; expire runs under it as well.
func (ps *PhaseScheduler) Arm(room *Room, d time.Duration, expire func(*Room)) {
	version := room.phaseVersion
	room.TimerEndsAt = time.Now().Add(d).UnixMilli()

	t := time.AfterFunc(d, func() {
		ps.mu.Lock()
		delete(ps.timers, room.Code)
		ps.mu.Unlock()

		room.lock()
		if room.phaseVersion != version {
			room.unlock()
			return
		}
		room.TimerEndsAt = 0
		expire(room)
		room.unlock()

		if ps.afterExpire != nil {
			ps.afterExpire(room)
		}
	})

	ps.mu.Lock()
	if old, ok := ps.timers[room.Code]; ok {
		old.Stop()
	}
	ps.timers[room.Code] = t
	ps.mu.Unlock()
}

// Cancel stops any pending timer for the room. Safe to call with or without
// the room lock held.
func (ps *PhaseScheduler) Cancel(code string) {
	ps.mu.Lock()
	if t, ok := ps.timers[code]; ok {
		t.Stop()
		delete(ps.timers, code)
	}
	ps.mu.Unlock()
}

// Armed reports whether a timer is currently pending for the room.
func (ps *PhaseScheduler) Armed(code string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.timers[code]
	return ok
}
