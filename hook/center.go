package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInterrupt signals that a handler wants to stop further handlers for
// this notification.
var ErrInterrupt = errors.New("hook interrupted")

// Notification event names. They are fired after the transition committed.
const (
	XPGranted        = "xp_granted"
	LevelUp          = "level_up"
	BadgeEarned      = "badge_earned"
	MissionCompleted = "mission_completed"
)

// Notification is what handlers receive. Only the fields relevant to Event
// are set.
type Notification struct {
	Event     string    `json:"event"`
	LearnerID string    `json:"learner_id"`
	At        time.Time `json:"at"`

	Amount  int64  `json:"amount,omitempty"`
	Reason  string `json:"reason,omitempty"`
	TotalXP int64  `json:"total_xp,omitempty"`

	FromLevel int    `json:"from_level,omitempty"`
	ToLevel   int    `json:"to_level,omitempty"`
	LevelName string `json:"level_name,omitempty"`

	BadgeID   string `json:"badge_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`
}

// HookFn handles one notification.
type HookFn func(ctx context.Context, n Notification) error

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages notification handler registrations. Firing is
// best-effort: handler errors and panics are logged and swallowed.
type HookCenter struct {
	mu     sync.RWMutex
	hooks  map[string][]*hookEntry
	logger *zap.Logger
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter(logger *zap.Logger) *HookCenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookCenter{hooks: make(map[string][]*hookEntry), logger: logger}
}

// Register adds fn for event with the given priority (lower runs first).
// name identifies the handler in failure logs.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := append(hc.hooks[event], &hookEntry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// Fire runs every handler for n.Event in priority order. A handler
// returning ErrInterrupt stops the chain.
func (hc *HookCenter) Fire(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	hc.mu.RLock()
	entries := make([]*hookEntry, len(hc.hooks[n.Event]))
	copy(entries, hc.hooks[n.Event])
	hc.mu.RUnlock()

	for _, e := range entries {
		if err := hc.call(ctx, e, n); err != nil {
			if errors.Is(err, ErrInterrupt) {
				return
			}
			hc.logger.Warn("hook failed",
				zap.String("event", n.Event),
				zap.String("hook", e.name),
				zap.String("learner_id", n.LearnerID),
				zap.Error(err))
		}
	}
}

func (hc *HookCenter) call(ctx context.Context, e *hookEntry, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			hc.logger.Error("hook panicked",
				zap.String("event", n.Event),
				zap.String("hook", e.name),
				zap.Any("recover", r))
			err = nil
		}
	}()
	return e.fn(ctx, n)
}
