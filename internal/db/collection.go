package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// ErrDuplicateID is returned by Create when the generated id already exists.
var ErrDuplicateID = errors.New("duplicate record id")

// Collection is the gorm-backed moderation.Collection. Update locks the row
// with SELECT ... FOR UPDATE inside a transaction; on SQLite the locking
// clause is dropped and the single pooled connection serializes writers.
type Collection[T any] struct {
	db            *gorm.DB
	logger        *slog.Logger
	name          string
	softDeletable bool
	byMessage     bool
}

func NewMessages(database *gorm.DB, logger *slog.Logger) *Collection[models.Message] {
	return &Collection[models.Message]{db: database, logger: resolveLogger(logger), name: "messages", softDeletable: true}
}

func NewComments(database *gorm.DB, logger *slog.Logger) *Collection[models.Comment] {
	return &Collection[models.Comment]{db: database, logger: resolveLogger(logger), name: "comments", softDeletable: true, byMessage: true}
}

func NewViolationReports(database *gorm.DB, logger *slog.Logger) *Collection[models.ViolationReport] {
	return &Collection[models.ViolationReport]{db: database, logger: resolveLogger(logger), name: "violation_reports", byMessage: true}
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	err := c.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&rec).Error
	if err != nil {
		var zero T
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, moderation.NotFound(id)
		}
		return zero, c.logError("db_get_failed", err, "id", id)
	}
	return rec, nil
}

func (c *Collection[T]) Create(ctx context.Context, record *T) error {
	if err := c.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return c.logError("db_create_failed", err)
	}
	return nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var out T
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec T
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(id)).
			First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return moderation.NotFound(id)
			}
			return err
		}
		if err := mutate(&rec); err != nil {
			return err
		}
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		var zero T
		if moderation.KindOf(err) != "" {
			return zero, err
		}
		return zero, c.logError("db_update_failed", err, "id", id)
	}
	return out, nil
}

func (c *Collection[T]) Query(ctx context.Context, filter moderation.Filter) ([]T, error) {
	tx := c.scoped(c.db.WithContext(ctx).Model(new(T)), filter).
		Order("created_at DESC").
		Order("id ASC")
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	rows := []T{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, c.logError("db_query_failed", err, "status", filter.Status)
	}
	return rows, nil
}

func (c *Collection[T]) Count(ctx context.Context, filter moderation.Filter) (int64, error) {
	var n int64
	if err := c.scoped(c.db.WithContext(ctx).Model(new(T)), filter).Count(&n).Error; err != nil {
		return 0, c.logError("db_count_failed", err, "status", filter.Status)
	}
	return n, nil
}

func (c *Collection[T]) scoped(tx *gorm.DB, filter moderation.Filter) *gorm.DB {
	if filter.Status != "" {
		tx = tx.Where("status = ?", strings.ToLower(filter.Status))
	}
	if c.byMessage && filter.MessageID != "" {
		tx = tx.Where("message_id = ?", filter.MessageID)
	}
	if c.softDeletable {
		switch filter.Deleted {
		case moderation.ExcludeDeleted:
			tx = tx.Where("is_deleted = ?", false)
		case moderation.OnlyDeleted:
			tx = tx.Where("is_deleted = ?", true)
		}
	}
	return tx
}

func (c *Collection[T]) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", "internal/db",
		"layer", "adapter",
		"collection", c.name,
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	c.logger.Error("database operation failed", fields...)
	return fmt.Errorf("%s: %w", c.name, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

var (
	_ moderation.MessageStore = (*Collection[models.Message])(nil)
	_ moderation.CommentStore = (*Collection[models.Comment])(nil)
	_ moderation.ReportStore  = (*Collection[models.ViolationReport])(nil)
)
