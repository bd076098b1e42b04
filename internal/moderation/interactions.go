package moderation

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// DefaultAutoRejectThreshold is the number of distinct reporters that
// rejects a comment.
const DefaultAutoRejectThreshold = 3

// InteractionInput identifies who does what to which comment. Reason is only
// read by Report.
type InteractionInput struct {
	CommentID string
	Client    ClientID
	Reason    string
}

// InteractionResult is the post-mutation view of a comment for one client.
type InteractionResult struct {
	CommentID    string
	Likes        int
	Dislikes     int
	Reports      int
	Liked        bool
	Disliked     bool
	Reported     bool
	Status       models.Status
	AutoRejected bool
}

// Tracker records per-client reactions and reports on comments. Each call is
// one atomic update of the comment, so the report set and any resulting
// auto-rejection commit or fail together.
type Tracker struct {
	Comments  CommentStore
	Clock     Clock
	Threshold int
	Validator Validator
	Publisher Publisher
	Logger    *slog.Logger
}

// Like adds the client to the like set, dropping any dislike first.
func (t *Tracker) Like(ctx context.Context, in InteractionInput) (InteractionResult, error) {
	return t.apply(ctx, in, func(c *models.Comment, client string, _ time.Time) (bool, bool) {
		removed := removeClient(&c.DislikedBy, client)
		added := addClient(&c.LikedBy, client)
		return removed || added, false
	})
}

// Dislike is the mirror of Like.
func (t *Tracker) Dislike(ctx context.Context, in InteractionInput) (InteractionResult, error) {
	return t.apply(ctx, in, func(c *models.Comment, client string, _ time.Time) (bool, bool) {
		removed := removeClient(&c.LikedBy, client)
		added := addClient(&c.DislikedBy, client)
		return removed || added, false
	})
}

// Report counts the client once per comment. The first time the count reaches
// the threshold the comment is rejected in the same update; later reports do
// not fire again, even after an admin re-approves the comment.
func (t *Tracker) Report(ctx context.Context, in InteractionInput) (InteractionResult, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return InteractionResult{}, MissingReason(string(FieldReportReason))
	}
	if err := t.Validator.Validate(reason, FieldReportReason).Err(); err != nil {
		return InteractionResult{}, err
	}
	threshold := t.threshold()
	return t.apply(ctx, in, func(c *models.Comment, client string, now time.Time) (bool, bool) {
		if !addClient(&c.ReportedBy, client) {
			return false, false
		}
		c.ReportCount = len(c.ReportedBy)
		if c.ReportCount < threshold {
			return true, false
		}
		return true, autoRejectComment(c, now)
	})
}

type interaction func(c *models.Comment, client string, now time.Time) (changed, autoRejected bool)

func (t *Tracker) apply(ctx context.Context, in InteractionInput, fn interaction) (InteractionResult, error) {
	commentID := strings.TrimSpace(in.CommentID)
	client := strings.TrimSpace(string(in.Client))
	if commentID == "" {
		return InteractionResult{}, ValidationFailed("commentId", "is required")
	}
	if client == "" {
		return InteractionResult{}, ValidationFailed("clientId", "is required")
	}

	changed, autoRejected := false, false
	c, err := t.Comments.Update(ctx, commentID, func(c *models.Comment) error {
		if c.Moderation.IsDeleted {
			return NotFound(commentID)
		}
		now := t.now()
		changed, autoRejected = fn(c, client, now)
		if changed {
			c.Touch(now)
		}
		return nil
	})
	if err != nil {
		return InteractionResult{}, err
	}

	if autoRejected {
		resolveLogger(t.Logger).Warn("comment auto-rejected",
			"event", "moderation_comment_auto_rejected",
			"module", "moderation",
			"layer", "application",
			"comment_id", c.ID,
			"report_count", c.ReportCount,
		)
		publish(t.Publisher, ctx, commentEvent(EventCommentAutoReject, c))
	} else if changed {
		publish(t.Publisher, ctx, commentEvent(EventCommentInteraction, c))
	}
	res := ResultFor(c, ClientID(client))
	res.AutoRejected = autoRejected
	return res, nil
}

// ResultFor renders the interaction state of c as seen by client.
func ResultFor(c models.Comment, client ClientID) InteractionResult {
	id := string(client)
	return InteractionResult{
		CommentID: c.ID,
		Likes:     len(c.LikedBy),
		Dislikes:  len(c.DislikedBy),
		Reports:   c.ReportCount,
		Liked:     slices.Contains(c.LikedBy, id),
		Disliked:  slices.Contains(c.DislikedBy, id),
		Reported:  slices.Contains(c.ReportedBy, id),
		Status:    c.Moderation.Status,
	}
}

func (t *Tracker) threshold() int {
	if t.Threshold <= 0 {
		return DefaultAutoRejectThreshold
	}
	return t.Threshold
}

func (t *Tracker) now() time.Time {
	if t.Clock != nil {
		return t.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func addClient(set *[]string, client string) bool {
	if slices.Contains(*set, client) {
		return false
	}
	*set = append(*set, client)
	return true
}

func removeClient(set *[]string, client string) bool {
	i := slices.Index(*set, client)
	if i < 0 {
		return false
	}
	*set = slices.Delete(*set, i, i+1)
	return true
}
