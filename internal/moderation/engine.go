package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// AutoModerator is recorded as ModeratedBy for system-triggered rejections.
const AutoModerator = "system"

const autoRejectReason = "automatically rejected after reaching the report threshold"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CreateMessageInput is a public sticky-note submission.
type CreateMessageInput struct {
	Content    string
	Color      string
	AuthorName string
	Client     Identity
}

// CreateCommentInput is a public comment submission on an approved message.
type CreateCommentInput struct {
	MessageID  string
	Content    string
	AuthorName string
	Client     Identity
}

// CreateViolationReportInput is a freestanding abuse report.
type CreateViolationReportInput struct {
	Type        models.ViolationType
	Description string
	MessageID   string
	Client      Identity
}

// Engine owns the Message/Comment lifecycle: creation in PENDING, admin
// transitions, soft delete and restore, and auto-rejection.
type Engine struct {
	Messages  MessageStore
	Comments  CommentStore
	Reports   ReportStore
	Limiter   *RateLimiter
	Validator Validator
	Clock     Clock
	Publisher Publisher
	Logger    *slog.Logger
}

func (e *Engine) CreateMessage(ctx context.Context, in CreateMessageInput) (models.Message, error) {
	content := strings.TrimSpace(in.Content)
	author := strings.TrimSpace(in.AuthorName)
	color := strings.ToLower(strings.TrimSpace(in.Color))
	if color == "" {
		color = models.Palette[0]
	}
	if err := firstInvalid(
		e.Validator.Validate(content, FieldMessage),
		e.Validator.ValidateColor(color),
		e.Validator.ValidateOptional(author, FieldAuthorName),
	); err != nil {
		return models.Message{}, err
	}
	if err := e.admit(ctx, in.Client.ID, Request{Policy: PolicyMessage}); err != nil {
		return models.Message{}, err
	}

	now := e.now()
	msg := models.Message{
		Content:    content,
		Color:      color,
		AuthorName: author,
		Moderation: models.Moderation{Status: models.StatusPending},
		Submitter:  submitterOf(in.Client),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Messages.Create(ctx, &msg); err != nil {
		return models.Message{}, e.logError("moderation_message_create_failed", err)
	}
	e.log().Info("message submitted",
		"event", "moderation_message_created",
		"module", "moderation",
		"layer", "application",
		"message_id", msg.ID,
		"client_id", string(in.Client.ID),
	)
	publish(e.Publisher, ctx, Event{Type: EventMessageCreated, ID: msg.ID, Status: msg.Moderation.Status, At: now})
	return msg, nil
}

func (e *Engine) CreateComment(ctx context.Context, in CreateCommentInput) (models.Comment, error) {
	messageID := strings.TrimSpace(in.MessageID)
	content := strings.TrimSpace(in.Content)
	author := strings.TrimSpace(in.AuthorName)
	if messageID == "" {
		return models.Comment{}, ValidationFailed("messageId", "is required")
	}
	if err := firstInvalid(
		e.Validator.Validate(content, FieldComment),
		e.Validator.ValidateOptional(author, FieldAuthorName),
	); err != nil {
		return models.Comment{}, err
	}

	// The parent is not locked across Create. A comment that races a parent
	// delete stays pending and ListPublicComments hides it with its parent.
	parent, err := e.Messages.Get(ctx, messageID)
	if err != nil {
		return models.Comment{}, err
	}
	if parent.Moderation.IsDeleted || parent.Moderation.Status != models.StatusApproved {
		return models.Comment{}, NotFound(messageID)
	}
	if err := e.admit(ctx, in.Client.ID,
		Request{Policy: PolicyComment},
		Request{Policy: PolicyCommentPerMessage, Scope: messageID},
	); err != nil {
		return models.Comment{}, err
	}

	now := e.now()
	c := models.Comment{
		MessageID:  messageID,
		Content:    content,
		AuthorName: author,
		Moderation: models.Moderation{Status: models.StatusPending},
		LikedBy:    []string{},
		DislikedBy: []string{},
		ReportedBy: []string{},
		Submitter:  submitterOf(in.Client),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Comments.Create(ctx, &c); err != nil {
		return models.Comment{}, e.logError("moderation_comment_create_failed", err, "message_id", messageID)
	}
	e.log().Info("comment submitted",
		"event", "moderation_comment_created",
		"module", "moderation",
		"layer", "application",
		"comment_id", c.ID,
		"message_id", messageID,
		"client_id", string(in.Client.ID),
	)
	publish(e.Publisher, ctx, Event{Type: EventCommentCreated, ID: c.ID, MessageID: messageID, Status: c.Moderation.Status, At: now})
	return c, nil
}

func (e *Engine) TransitionMessage(ctx context.Context, id string, to models.Status, moderatorID, reason string) (models.Message, error) {
	msg, changed, err := transition(ctx, e, e.Messages, id, to, moderatorID, reason)
	if err == nil && changed {
		publish(e.Publisher, ctx, Event{Type: messageEventFor(to), ID: msg.ID, Status: to, At: msg.UpdatedAt})
	}
	return msg, err
}

func (e *Engine) TransitionComment(ctx context.Context, id string, to models.Status, moderatorID, reason string) (models.Comment, error) {
	c, changed, err := transition(ctx, e, e.Comments, id, to, moderatorID, reason)
	if err == nil && changed {
		publish(e.Publisher, ctx, commentEvent(commentEventFor(to), c))
	}
	return c, err
}

func (e *Engine) SoftDeleteMessage(ctx context.Context, id, actorID string) error {
	msg, err := softDelete(ctx, e, e.Messages, id, actorID)
	if err == nil {
		publish(e.Publisher, ctx, Event{Type: EventMessageDeleted, ID: msg.ID, Status: msg.Moderation.Status, At: msg.UpdatedAt})
	}
	return err
}

func (e *Engine) SoftDeleteComment(ctx context.Context, id, actorID string) error {
	c, err := softDelete(ctx, e, e.Comments, id, actorID)
	if err == nil {
		publish(e.Publisher, ctx, commentEvent(EventCommentDeleted, c))
	}
	return err
}

func (e *Engine) RestoreMessage(ctx context.Context, id string) (models.Message, error) {
	msg, err := restore(ctx, e, e.Messages, id)
	if err == nil {
		publish(e.Publisher, ctx, Event{Type: EventMessageRestored, ID: msg.ID, Status: msg.Moderation.Status, At: msg.UpdatedAt})
	}
	return msg, err
}

func (e *Engine) RestoreComment(ctx context.Context, id string) (models.Comment, error) {
	c, err := restore(ctx, e, e.Comments, id)
	if err == nil {
		publish(e.Publisher, ctx, commentEvent(EventCommentRestored, c))
	}
	return c, err
}

// AutoRejectComment rejects a comment on behalf of the system. It never
// requires a reason and fires at most once per comment, so it is a no-op on
// an already rejected or previously auto-rejected comment. Moving an APPROVED
// comment to REJECTED is intended: reports only reach visible comments.
func (e *Engine) AutoRejectComment(ctx context.Context, id string) (models.Comment, error) {
	changed := false
	c, err := e.Comments.Update(ctx, id, func(c *models.Comment) error {
		if c.Moderation.IsDeleted {
			return AlreadyDeleted(id)
		}
		now := e.now()
		changed = autoRejectComment(c, now)
		if changed {
			c.Touch(now)
		}
		return nil
	})
	if err != nil {
		return models.Comment{}, err
	}
	if changed {
		e.log().Warn("comment auto-rejected",
			"event", "moderation_comment_auto_rejected",
			"module", "moderation",
			"layer", "application",
			"comment_id", id,
			"report_count", c.ReportCount,
		)
		publish(e.Publisher, ctx, commentEvent(EventCommentAutoReject, c))
	}
	return c, nil
}

// ListMessages returns messages for the admin view. Deleted messages are
// excluded unless filter.Deleted says otherwise.
func (e *Engine) ListMessages(ctx context.Context, filter Filter) ([]models.Message, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.Messages.Query(ctx, f)
}

// ListPublicMessages returns approved, non-deleted messages.
func (e *Engine) ListPublicMessages(ctx context.Context, limit, offset int) ([]models.Message, error) {
	return e.ListMessages(ctx, Filter{Status: string(models.StatusApproved), Limit: limit, Offset: offset})
}

func (e *Engine) ListComments(ctx context.Context, filter Filter) ([]models.Comment, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.Comments.Query(ctx, f)
}

// ListPublicComments returns the approved, non-deleted comments of a visible
// message.
func (e *Engine) ListPublicComments(ctx context.Context, messageID string, limit, offset int) ([]models.Comment, error) {
	parent, err := e.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if parent.Moderation.IsDeleted || parent.Moderation.Status != models.StatusApproved {
		return nil, NotFound(messageID)
	}
	return e.ListComments(ctx, Filter{
		Status:    string(models.StatusApproved),
		MessageID: messageID,
		Limit:     limit,
		Offset:    offset,
	})
}

type moderated[T any] interface {
	*T
	State() *models.Moderation
	Touch(time.Time)
}

func transition[T any, P moderated[T]](ctx context.Context, e *Engine, store Collection[T], id string, to models.Status, moderatorID, reason string) (T, bool, error) {
	var zero T
	moderatorID = strings.TrimSpace(moderatorID)
	reason = strings.TrimSpace(reason)
	if moderatorID == "" {
		return zero, false, ValidationFailed("moderatorId", "is required")
	}
	if to == models.StatusRejected && reason != "" {
		if err := e.Validator.Validate(reason, FieldRejectionReason).Err(); err != nil {
			return zero, false, err
		}
	}

	var from models.Status
	changed := false
	rec, err := store.Update(ctx, id, func(rec *T) error {
		st := P(rec).State()
		from = st.Status
		if st.IsDeleted {
			return AlreadyDeleted(id)
		}
		if to != models.StatusApproved && to != models.StatusRejected {
			return IllegalTransition(st.Status, to)
		}
		if st.Status == to {
			return nil
		}
		if to == models.StatusRejected && reason == "" {
			return MissingReason(string(FieldRejectionReason))
		}
		now := e.now()
		st.Status = to
		st.ModeratedBy = moderatorID
		st.ModeratedAt = &now
		st.RejectionReason = ""
		if to == models.StatusRejected {
			st.RejectionReason = reason
		}
		P(rec).Touch(now)
		changed = true
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	if changed {
		e.log().Info("moderation decision recorded",
			"event", "moderation_transition_committed",
			"module", "moderation",
			"layer", "application",
			"entity_id", id,
			"from", string(from),
			"to", string(to),
			"moderator_id", moderatorID,
		)
	}
	return rec, changed, nil
}

func softDelete[T any, P moderated[T]](ctx context.Context, e *Engine, store Collection[T], id, actorID string) (T, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		var zero T
		return zero, ValidationFailed("actorId", "is required")
	}
	rec, err := store.Update(ctx, id, func(rec *T) error {
		st := P(rec).State()
		if st.IsDeleted {
			return AlreadyDeleted(id)
		}
		now := e.now()
		st.IsDeleted = true
		st.DeletedBy = actorID
		st.DeletedAt = &now
		P(rec).Touch(now)
		return nil
	})
	if err == nil {
		e.log().Info("entity soft-deleted",
			"event", "moderation_soft_delete_committed",
			"module", "moderation",
			"layer", "application",
			"entity_id", id,
			"actor_id", actorID,
		)
	}
	return rec, err
}

func restore[T any, P moderated[T]](ctx context.Context, e *Engine, store Collection[T], id string) (T, error) {
	rec, err := store.Update(ctx, id, func(rec *T) error {
		st := P(rec).State()
		if !st.IsDeleted {
			return NotDeleted(id)
		}
		st.IsDeleted = false
		st.DeletedBy = ""
		st.DeletedAt = nil
		P(rec).Touch(e.now())
		return nil
	})
	if err == nil {
		e.log().Info("entity restored",
			"event", "moderation_restore_committed",
			"module", "moderation",
			"layer", "application",
			"entity_id", id,
		)
	}
	return rec, err
}

// autoRejectComment is the single auto-rejection step shared by the engine
// and the tracker. AutoRejectedAt marks that it has run; a comment an admin
// re-approves afterwards is never auto-rejected again.
func autoRejectComment(c *models.Comment, now time.Time) bool {
	if c.AutoRejectedAt != nil {
		return false
	}
	c.AutoRejectedAt = &now
	return applyAutoReject(&c.Moderation, now)
}

// applyAutoReject moves a non-rejected entity to REJECTED on behalf of the
// system and reports whether anything changed.
func applyAutoReject(st *models.Moderation, now time.Time) bool {
	if st.Status == models.StatusRejected {
		return false
	}
	st.Status = models.StatusRejected
	st.ModeratedBy = AutoModerator
	st.ModeratedAt = &now
	st.RejectionReason = autoRejectReason
	return true
}

func (e *Engine) admit(ctx context.Context, client ClientID, reqs ...Request) error {
	if e.Limiter == nil {
		return nil
	}
	d, err := e.Limiter.CheckAll(ctx, client, reqs...)
	if err != nil {
		return err
	}
	if !d.Allowed {
		publish(e.Publisher, ctx, Event{Type: EventRateLimited, Policy: d.Policy, At: e.now()})
		return RateLimitExceeded(d.ResetAt)
	}
	return nil
}

func normalizeFilter(f Filter) (Filter, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	if f.Status != "" && !models.Status(f.Status).Valid() {
		return Filter{}, ValidationFailed("status", "must be pending, approved or rejected")
	}
	if f.Offset < 0 {
		return Filter{}, ValidationFailed("offset", "must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return f, nil
}

func firstInvalid(results ...ValidationResult) error {
	for _, r := range results {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

func submitterOf(id Identity) models.Submitter {
	return models.Submitter{SubmitterIP: id.Address, SubmitterFingerprint: id.Fingerprint}
}

func messageEventFor(to models.Status) EventType {
	if to == models.StatusApproved {
		return EventMessageApproved
	}
	return EventMessageRejected
}

func commentEventFor(to models.Status) EventType {
	if to == models.StatusApproved {
		return EventCommentApproved
	}
	return EventCommentRejected
}

func commentEvent(t EventType, c models.Comment) Event {
	return Event{
		Type:      t,
		ID:        c.ID,
		MessageID: c.MessageID,
		Status:    c.Moderation.Status,
		Likes:     len(c.LikedBy),
		Dislikes:  len(c.DislikedBy),
		Reports:   c.ReportCount,
		At:        c.UpdatedAt,
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) log() *slog.Logger { return resolveLogger(e.Logger) }

func (e *Engine) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "moderation",
		"layer", "application",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	e.log().Error("moderation operation failed", fields...)
	return fmt.Errorf("%s: %w", strings.TrimPrefix(event, "moderation_"), err)
}
