package moderation

import (
	"context"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// Clock supplies the current time for stamping and window expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// DeletedScope selects how soft-deleted records are treated by a query.
type DeletedScope int

const (
	ExcludeDeleted DeletedScope = iota
	IncludeDeleted
	OnlyDeleted
)

// Filter narrows a collection query. Zero values mean "any".
type Filter struct {
	Status    string
	Deleted   DeletedScope
	MessageID string
	Limit     int
	Offset    int
}

// Collection is the persistence port for one logical collection.
//
// Update must run mutate as a single atomic read-modify-write: concurrent
// updates of the same id are serialized, and an error returned by mutate (or a
// cancelled context) leaves the stored record untouched. Get and Update return
// an error matching ErrNotFound for unknown ids.
type Collection[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, record *T) error
	Update(ctx context.Context, id string, mutate func(*T) error) (T, error)
	Query(ctx context.Context, filter Filter) ([]T, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Slot is one counter a submission must be admitted against.
type Slot struct {
	Key      string
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

// SlotState is the post-decision view of one slot.
type SlotState struct {
	Count   int
	ResetAt time.Time
	// ReadyAt is when the cooldown for this slot elapses; zero without a cooldown.
	ReadyAt time.Time
}

// Admission is the outcome of WindowStore.Admit. Blocked is the index of the
// first slot that refused admission, or -1.
type Admission struct {
	Allowed bool
	Blocked int
	Slots   []SlotState
}

// WindowStore holds fixed-window counters. Admit checks every slot and, only
// if all of them pass, increments all of them and records now as the last
// admission, as one atomic step.
type WindowStore interface {
	Admit(ctx context.Context, now time.Time, slots ...Slot) (Admission, error)
}

type (
	MessageStore = Collection[models.Message]
	CommentStore = Collection[models.Comment]
	ReportStore  = Collection[models.ViolationReport]
)
