package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

type window struct {
	count   int
	resetAt time.Time
	lastAt  time.Time
	// expires is when the entry no longer affects any decision.
	expires time.Time
}

// WindowStore keeps fixed-window counters in a map guarded by one mutex.
// Expired entries are dropped by Sweep.
type WindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewWindowStore() *WindowStore {
	return &WindowStore{windows: map[string]*window{}}
}

func (s *WindowStore) Admit(ctx context.Context, now time.Time, slots ...moderation.Slot) (moderation.Admission, error) {
	if err := ctx.Err(); err != nil {
		return moderation.Admission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make([]window, len(slots))
	adm := moderation.Admission{Allowed: true, Blocked: -1, Slots: make([]moderation.SlotState, len(slots))}
	for i, slot := range slots {
		w := s.current(slot, now)
		current[i] = w
		adm.Slots[i] = stateOf(w, slot)
		if adm.Allowed && blocked(w, slot, now) {
			adm.Allowed = false
			adm.Blocked = i
		}
	}
	if !adm.Allowed {
		return adm, nil
	}

	for i, slot := range slots {
		w := current[i]
		w.count++
		w.lastAt = now
		w.expires = latest(w.resetAt, now.Add(slot.Cooldown))
		s.windows[slot.Key] = &w
		adm.Slots[i] = stateOf(w, slot)
	}
	return adm, nil
}

// current returns the live window for slot, starting a fresh one when the
// stored window has reached its reset time. The last admission survives the
// reset so a cooldown spanning a window boundary still applies.
func (s *WindowStore) current(slot moderation.Slot, now time.Time) window {
	w, ok := s.windows[slot.Key]
	if !ok {
		return window{resetAt: now.Add(slot.Window)}
	}
	if now.Before(w.resetAt) {
		return *w
	}
	return window{resetAt: now.Add(slot.Window), lastAt: w.lastAt}
}

// Sweep removes entries that can no longer affect a decision and returns how
// many were removed.
func (s *WindowStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, w := range s.windows {
		if !now.Before(w.expires) {
			delete(s.windows, key)
			n++
		}
	}
	return n
}

// Len reports the number of tracked windows.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *WindowStore) RunJanitor(ctx context.Context, interval time.Duration, clock moderation.Clock, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(clock.Now()); n > 0 {
				logger.Debug("rate limit windows swept",
					"event", "rate_limit_windows_swept",
					"module", "store/memory",
					"layer", "adapter",
					"removed", n,
				)
			}
		}
	}
}

func blocked(w window, slot moderation.Slot, now time.Time) bool {
	if w.count >= slot.Limit {
		return true
	}
	return slot.Cooldown > 0 && !w.lastAt.IsZero() && now.Before(w.lastAt.Add(slot.Cooldown))
}

func stateOf(w window, slot moderation.Slot) moderation.SlotState {
	st := moderation.SlotState{Count: w.count, ResetAt: w.resetAt}
	if slot.Cooldown > 0 && !w.lastAt.IsZero() {
		st.ReadyAt = w.lastAt.Add(slot.Cooldown)
	}
	return st
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

var _ moderation.WindowStore = (*WindowStore)(nil)
