package moderation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
	"github.com/sujalbistaa/stickyboard/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []moderation.Event
}

func (r *recorder) Publish(_ context.Context, ev moderation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t moderation.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	clock    *fakeClock
	messages *memory.Collection[models.Message]
	comments *memory.Collection[models.Comment]
	reports  *memory.Collection[models.ViolationReport]
	windows  *memory.WindowStore
	events   *recorder
	engine   *moderation.Engine
	tracker  *moderation.Tracker
	clients  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newFakeClock(),
		messages: memory.NewMessages(),
		comments: memory.NewComments(),
		reports:  memory.NewViolationReports(),
		windows:  memory.NewWindowStore(),
		events:   &recorder{},
	}
	f.engine = &moderation.Engine{
		Messages:  f.messages,
		Comments:  f.comments,
		Reports:   f.reports,
		Limiter:   moderation.NewRateLimiter(f.windows, f.clock, nil, nil),
		Clock:     f.clock,
		Publisher: f.events,
	}
	f.tracker = &moderation.Tracker{
		Comments:  f.comments,
		Clock:     f.clock,
		Publisher: f.events,
	}
	return f
}

// client returns a fresh identity so tests that are not about rate limiting
// never share a budget.
func (f *fixture) client() moderation.Identity {
	f.clients++
	return moderation.Identify(moderation.RequestMetadata{
		RemoteAddr: fmt.Sprintf("10.0.0.%d:4000", f.clients),
		UserAgent:  "test-agent",
	})
}

func (f *fixture) pendingMessage(t *testing.T) models.Message {
	t.Helper()
	msg, err := f.engine.CreateMessage(context.Background(), moderation.CreateMessageInput{
		Content: "hello board",
		Client:  f.client(),
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	return msg
}

func (f *fixture) approvedMessage(t *testing.T) models.Message {
	t.Helper()
	msg := f.pendingMessage(t)
	approved, err := f.engine.TransitionMessage(context.Background(), msg.ID, models.StatusApproved, "mod-1", "")
	if err != nil {
		t.Fatalf("approve message: %v", err)
	}
	return approved
}

func (f *fixture) pendingComment(t *testing.T, messageID string) models.Comment {
	t.Helper()
	c, err := f.engine.CreateComment(context.Background(), moderation.CreateCommentInput{
		MessageID: messageID,
		Content:   "nice note",
		Client:    f.client(),
	})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return c
}

func (f *fixture) approvedComment(t *testing.T) models.Comment {
	t.Helper()
	msg := f.approvedMessage(t)
	c := f.pendingComment(t, msg.ID)
	approved, err := f.engine.TransitionComment(context.Background(), c.ID, models.StatusApproved, "mod-1", "")
	if err != nil {
		t.Fatalf("approve comment: %v", err)
	}
	return approved
}
