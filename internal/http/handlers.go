package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// --- Request bodies ---

type CreateMessageBody struct {
	Content    string `json:"content"`
	Color      string `json:"color"`
	AuthorName string `json:"authorName"`
}

type CreateCommentBody struct {
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
}

type ReportCommentBody struct {
	Reason string `json:"reason"`
}

type ViolationReportBody struct {
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
	MessageID   string `json:"messageId"`
}

type ModerateBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type ReviewBody struct {
	Status string `json:"status" binding:"required"`
}

// --- Public views ---

// PublicMessage is what anonymous visitors see of a note.
type PublicMessage struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Color      string    `json:"color"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PublicComment carries reaction counts plus the viewer's own reaction.
type PublicComment struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"messageId"`
	Content    string    `json:"content"`
	AuthorName string    `json:"authorName,omitempty"`
	Likes      int       `json:"likes"`
	Dislikes   int       `json:"dislikes"`
	Liked      bool      `json:"liked"`
	Disliked   bool      `json:"disliked"`
	CreatedAt  time.Time `json:"createdAt"`
}

type InteractionView struct {
	CommentID    string        `json:"commentId"`
	Likes        int           `json:"likes"`
	Dislikes     int           `json:"dislikes"`
	Reports      int           `json:"reports"`
	Liked        bool          `json:"liked"`
	Disliked     bool          `json:"disliked"`
	Reported     bool          `json:"reported"`
	Status       models.Status `json:"status"`
	AutoRejected bool          `json:"autoRejected"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Handlers ---

type Env struct {
	Engine  *moderation.Engine
	Tracker *moderation.Tracker
	Stats   moderation.Aggregator
	Clock   moderation.Clock
	Logger  *slog.Logger
}

func (e *Env) ListMessages(c *gin.Context) {
	limit, offset, ok := e.page(c)
	if !ok {
		return
	}
	msgs, err := e.Engine.ListPublicMessages(c.Request.Context(), limit, offset)
	if err != nil {
		e.writeError(c, err)
		return
	}
	out := make([]PublicMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, publicMessage(m))
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) CreateMessage(c *gin.Context) {
	var body CreateMessageBody
	if !e.bind(c, &body) {
		return
	}
	msg, err := e.Engine.CreateMessage(c.Request.Context(), moderation.CreateMessageInput{
		Content:    body.Content,
		Color:      body.Color,
		AuthorName: body.AuthorName,
		Client:     identityOf(c),
	})
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": publicMessage(msg), "status": msg.Moderation.Status})
}

func (e *Env) ListComments(c *gin.Context) {
	limit, offset, ok := e.page(c)
	if !ok {
		return
	}
	comments, err := e.Engine.ListPublicComments(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		e.writeError(c, err)
		return
	}
	viewer := identityOf(c).ID
	out := make([]PublicComment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, publicComment(cm, viewer))
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) CreateComment(c *gin.Context) {
	var body CreateCommentBody
	if !e.bind(c, &body) {
		return
	}
	client := identityOf(c)
	cm, err := e.Engine.CreateComment(c.Request.Context(), moderation.CreateCommentInput{
		MessageID:  c.Param("id"),
		Content:    body.Content,
		AuthorName: body.AuthorName,
		Client:     client,
	})
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": publicComment(cm, client.ID), "status": cm.Moderation.Status})
}

func (e *Env) LikeComment(c *gin.Context) {
	e.interact(c, e.Tracker.Like, "")
}

func (e *Env) DislikeComment(c *gin.Context) {
	e.interact(c, e.Tracker.Dislike, "")
}

func (e *Env) ReportComment(c *gin.Context) {
	var body ReportCommentBody
	// An empty body is a report without a reason, which the tracker rejects.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBindError(c, err)
		return
	}
	e.interact(c, e.Tracker.Report, body.Reason)
}

func (e *Env) CreateViolationReport(c *gin.Context) {
	var body ViolationReportBody
	if !e.bind(c, &body) {
		return
	}
	report, err := e.Engine.CreateViolationReport(c.Request.Context(), moderation.CreateViolationReportInput{
		Type:        models.ViolationType(body.Type),
		Description: body.Description,
		MessageID:   body.MessageID,
		Client:      identityOf(c),
	})
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": report.ID, "status": report.Status})
}

// --- Admin handlers ---

func (e *Env) AdminListMessages(c *gin.Context) {
	filter, ok := e.adminFilter(c)
	if !ok {
		return
	}
	msgs, err := e.Engine.ListMessages(c.Request.Context(), filter)
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (e *Env) AdminModerateMessage(c *gin.Context) {
	var body ModerateBody
	if !e.bind(c, &body) {
		return
	}
	msg, err := e.Engine.TransitionMessage(c.Request.Context(), c.Param("id"), models.Status(body.Status), moderatorOf(c), body.Reason)
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (e *Env) AdminDeleteMessage(c *gin.Context) {
	if err := e.Engine.SoftDeleteMessage(c.Request.Context(), c.Param("id"), moderatorOf(c)); err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}

func (e *Env) AdminRestoreMessage(c *gin.Context) {
	msg, err := e.Engine.RestoreMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (e *Env) AdminListComments(c *gin.Context) {
	filter, ok := e.adminFilter(c)
	if !ok {
		return
	}
	filter.MessageID = strings.TrimSpace(c.Query("messageId"))
	comments, err := e.Engine.ListComments(c.Request.Context(), filter)
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (e *Env) AdminModerateComment(c *gin.Context) {
	var body ModerateBody
	if !e.bind(c, &body) {
		return
	}
	cm, err := e.Engine.TransitionComment(c.Request.Context(), c.Param("id"), models.Status(body.Status), moderatorOf(c), body.Reason)
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (e *Env) AdminDeleteComment(c *gin.Context) {
	if err := e.Engine.SoftDeleteComment(c.Request.Context(), c.Param("id"), moderatorOf(c)); err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}

func (e *Env) AdminRestoreComment(c *gin.Context) {
	cm, err := e.Engine.RestoreComment(c.Request.Context(), c.Param("id"))
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (e *Env) AdminStats(c *gin.Context) {
	stats, err := e.Stats.Stats(c.Request.Context())
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (e *Env) AdminListReports(c *gin.Context) {
	limit, offset, ok := e.page(c)
	if !ok {
		return
	}
	reports, err := e.Engine.ListViolationReports(c.Request.Context(), moderation.Filter{
		Status:    c.Query("status"),
		MessageID: strings.TrimSpace(c.Query("messageId")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (e *Env) AdminReviewReport(c *gin.Context) {
	var body ReviewBody
	if !e.bind(c, &body) {
		return
	}
	report, err := e.Engine.ReviewViolationReport(c.Request.Context(), c.Param("id"), models.ReportStatus(body.Status), moderatorOf(c))
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Helpers ---

type interactFunc func(ctx context.Context, in moderation.InteractionInput) (moderation.InteractionResult, error)

func (e *Env) interact(c *gin.Context, fn interactFunc, reason string) {
	res, err := fn(c.Request.Context(), moderation.InteractionInput{
		CommentID: c.Param("id"),
		Client:    identityOf(c).ID,
		Reason:    reason,
	})
	if err != nil {
		e.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, InteractionView{
		CommentID:    res.CommentID,
		Likes:        res.Likes,
		Dislikes:     res.Dislikes,
		Reports:      res.Reports,
		Liked:        res.Liked,
		Disliked:     res.Disliked,
		Reported:     res.Reported,
		Status:       res.Status,
		AutoRejected: res.AutoRejected,
	})
}

func (e *Env) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeBindError(c, err)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error) {
	writeErrorBody(c, http.StatusBadRequest, errorBody{
		Code:    string(moderation.KindValidationFailed),
		Message: "invalid request body: " + err.Error(),
	})
}

func (e *Env) page(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			e.writeError(c, moderation.ValidationFailed("limit", "must be an integer"))
			return 0, 0, false
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			e.writeError(c, moderation.ValidationFailed("offset", "must be an integer"))
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func (e *Env) adminFilter(c *gin.Context) (moderation.Filter, bool) {
	limit, offset, ok := e.page(c)
	if !ok {
		return moderation.Filter{}, false
	}
	f := moderation.Filter{Status: c.Query("status"), Limit: limit, Offset: offset}
	switch strings.ToLower(strings.TrimSpace(c.Query("deleted"))) {
	case "", "exclude", "false":
		f.Deleted = moderation.ExcludeDeleted
	case "include", "all":
		f.Deleted = moderation.IncludeDeleted
	case "only", "true":
		f.Deleted = moderation.OnlyDeleted
	default:
		e.writeError(c, moderation.ValidationFailed("deleted", "must be exclude, include or only"))
		return moderation.Filter{}, false
	}
	return f, true
}

// writeError maps a core error onto an HTTP status. Anything outside the
// error taxonomy is a 500 and is logged.
func (e *Env) writeError(c *gin.Context, err error) {
	var merr *moderation.Error
	if !errors.As(err, &merr) {
		e.log().Error("request failed",
			"event", "http_internal_error",
			"module", "internal/http",
			"layer", "transport",
			"path", c.FullPath(),
			"error", err.Error(),
		)
		writeErrorBody(c, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
		return
	}

	body := errorBody{Code: string(merr.Kind), Message: merr.Error()}
	switch merr.Kind {
	case moderation.KindValidationFailed, moderation.KindMissingReason:
		if merr.Field != "" {
			body.Details = map[string]any{"field": merr.Field}
		}
		writeErrorBody(c, http.StatusBadRequest, body)
	case moderation.KindRateLimitExceeded:
		retry := retryAfterSeconds(merr.ResetAt, e.now())
		c.Header("Retry-After", strconv.Itoa(retry))
		body.Details = map[string]any{
			"retryAfterSeconds": retry,
			"resetAt":           merr.ResetAt.UTC().Format(time.RFC3339),
		}
		writeErrorBody(c, http.StatusTooManyRequests, body)
	case moderation.KindNotFound:
		writeErrorBody(c, http.StatusNotFound, body)
	case moderation.KindAlreadyDeleted, moderation.KindNotDeleted, moderation.KindIllegalTransition:
		writeErrorBody(c, http.StatusConflict, body)
	default:
		writeErrorBody(c, http.StatusInternalServerError, body)
	}
}

func writeErrorBody(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// retryAfterSeconds is the Retry-After header value, which must be positive.
func retryAfterSeconds(resetAt, now time.Time) int {
	wait := moderation.Decision{ResetAt: resetAt}.RetryAfter(now)
	return max(int(wait/time.Second), 1)
}

func publicMessage(m models.Message) PublicMessage {
	return PublicMessage{
		ID:         m.ID,
		Content:    m.Content,
		Color:      m.Color,
		AuthorName: m.AuthorName,
		CreatedAt:  m.CreatedAt,
	}
}

func publicComment(c models.Comment, viewer moderation.ClientID) PublicComment {
	view := moderation.ResultFor(c, viewer)
	return PublicComment{
		ID:         c.ID,
		MessageID:  c.MessageID,
		Content:    c.Content,
		AuthorName: c.AuthorName,
		Likes:      view.Likes,
		Dislikes:   view.Dislikes,
		Liked:      view.Liked,
		Disliked:   view.Disliked,
		CreatedAt:  c.CreatedAt,
	}
}

func (e *Env) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now()
}

func (e *Env) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
