package moderation

import (
	"context"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// EventType names a state change the core announces after it is committed.
type EventType string

const (
	EventMessageCreated     EventType = "message_created"
	EventMessageApproved    EventType = "message_approved"
	EventMessageRejected    EventType = "message_rejected"
	EventMessageDeleted     EventType = "message_deleted"
	EventMessageRestored    EventType = "message_restored"
	EventCommentCreated     EventType = "comment_created"
	EventCommentApproved    EventType = "comment_approved"
	EventCommentRejected    EventType = "comment_rejected"
	EventCommentDeleted     EventType = "comment_deleted"
	EventCommentRestored    EventType = "comment_restored"
	EventCommentInteraction EventType = "comment_interaction"
	EventCommentAutoReject  EventType = "comment_auto_rejected"
	EventViolationReported  EventType = "violation_reported"
	EventViolationReviewed  EventType = "violation_reviewed"
	EventRateLimited        EventType = "rate_limited"
)

// Event is a committed state change. Counts are set for comment events.
type Event struct {
	Type      EventType     `json:"type"`
	ID        string        `json:"id,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Status    models.Status `json:"status,omitempty"`
	Policy    PolicyName    `json:"policy,omitempty"`
	Likes     int           `json:"likes,omitempty"`
	Dislikes  int           `json:"dislikes,omitempty"`
	Reports   int           `json:"reports,omitempty"`
	At        time.Time     `json:"at"`
}

// Publisher receives committed events. Implementations must not block.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Publishers fans an event out to every member.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, event Event) {
	for _, p := range ps {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}

func publish(p Publisher, ctx context.Context, event Event) {
	if p != nil {
		p.Publish(ctx, event)
	}
}
