package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// schema tells a Collection how to read and copy one record type.
type schema[T any] struct {
	id      func(*T) *string
	clone   func(T) T
	match   func(T, moderation.Filter) bool
	created func(T) time.Time
}

// Collection is a process-local moderation.Collection. A single mutex makes
// every Update an atomic read-modify-write; records are copied in and out so
// callers never share slices with the stored value.
type Collection[T any] struct {
	mu      sync.RWMutex
	records map[string]T
	schema  schema[T]
}

func newCollection[T any](s schema[T]) *Collection[T] {
	return &Collection[T]{records: map[string]T{}, schema: s}
}

func NewMessages() *Collection[models.Message] {
	return newCollection(schema[models.Message]{
		id:    func(m *models.Message) *string { return &m.ID },
		clone: func(m models.Message) models.Message { return m },
		match: func(m models.Message, f moderation.Filter) bool {
			return matchModeration(m.Moderation, f)
		},
		created: func(m models.Message) time.Time { return m.CreatedAt },
	})
}

func NewComments() *Collection[models.Comment] {
	return newCollection(schema[models.Comment]{
		id: func(c *models.Comment) *string { return &c.ID },
		clone: func(c models.Comment) models.Comment {
			c.LikedBy = slices.Clone(c.LikedBy)
			c.DislikedBy = slices.Clone(c.DislikedBy)
			c.ReportedBy = slices.Clone(c.ReportedBy)
			return c
		},
		match: func(c models.Comment, f moderation.Filter) bool {
			if f.MessageID != "" && c.MessageID != f.MessageID {
				return false
			}
			return matchModeration(c.Moderation, f)
		},
		created: func(c models.Comment) time.Time { return c.CreatedAt },
	})
}

func NewViolationReports() *Collection[models.ViolationReport] {
	return newCollection(schema[models.ViolationReport]{
		id:    func(r *models.ViolationReport) *string { return &r.ID },
		clone: func(r models.ViolationReport) models.ViolationReport { return r },
		match: func(r models.ViolationReport, f moderation.Filter) bool {
			if f.MessageID != "" && r.MessageID != f.MessageID {
				return false
			}
			return f.Status == "" || strings.EqualFold(string(r.Status), f.Status)
		},
		created: func(r models.ViolationReport) time.Time { return r.CreatedAt },
	})
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return zero, moderation.NotFound(id)
	}
	return c.schema.clone(rec), nil
}

func (c *Collection[T]) Create(ctx context.Context, record *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.schema.id(record)
	if *id == "" {
		*id = uuid.NewString()
	}
	c.records[*id] = c.schema.clone(*record)
	return nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	rec, ok := c.records[id]
	if !ok {
		return zero, moderation.NotFound(id)
	}
	working := c.schema.clone(rec)
	if err := mutate(&working); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.records[id] = working
	return c.schema.clone(working), nil
}

func (c *Collection[T]) Query(ctx context.Context, filter moderation.Filter) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := c.matching(filter)
	slices.SortFunc(items, func(a, b T) int {
		if d := c.schema.created(b).Compare(c.schema.created(a)); d != 0 {
			return d
		}
		return strings.Compare(*c.schema.id(&a), *c.schema.id(&b))
	})
	if filter.Offset >= len(items) {
		return []T{}, nil
	}
	end := len(items)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return items[filter.Offset:end], nil
}

func (c *Collection[T]) Count(ctx context.Context, filter moderation.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(c.matching(filter))), nil
}

func (c *Collection[T]) matching(filter moderation.Filter) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := make([]T, 0, len(c.records))
	for _, rec := range c.records {
		if c.schema.match(rec, filter) {
			items = append(items, c.schema.clone(rec))
		}
	}
	return items
}

func matchModeration(m models.Moderation, f moderation.Filter) bool {
	switch f.Deleted {
	case moderation.ExcludeDeleted:
		if m.IsDeleted {
			return false
		}
	case moderation.OnlyDeleted:
		if !m.IsDeleted {
			return false
		}
	}
	return f.Status == "" || strings.EqualFold(string(m.Status), f.Status)
}

var (
	_ moderation.MessageStore = (*Collection[models.Message])(nil)
	_ moderation.CommentStore = (*Collection[models.Comment])(nil)
	_ moderation.ReportStore  = (*Collection[models.ViolationReport])(nil)
)
