package moderation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

func TestCreateMessageStartsPending(t *testing.T) {
	f := newFixture(t)
	msg, err := f.engine.CreateMessage(context.Background(), moderation.CreateMessageInput{
		Content:    "  hello world  ",
		AuthorName: "Ana",
		Client:     f.client(),
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected an id")
	}
	if msg.Moderation.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", msg.Moderation.Status)
	}
	if msg.Content != "hello world" || msg.Color != "yellow" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.CreatedAt.Equal(f.clock.Now()) || !msg.UpdatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("expected timestamps from the clock, got %s / %s", msg.CreatedAt, msg.UpdatedAt)
	}
	if msg.Submitter.SubmitterFingerprint == "" {
		t.Fatalf("expected submitter fingerprint to be recorded")
	}
	if f.events.count(moderation.EventMessageCreated) != 1 {
		t.Fatalf("expected a message_created event")
	}
}

func TestCreateMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []moderation.CreateMessageInput{
		{Content: ""},
		{Content: strings.Repeat("x", 281)},
		{Content: "ok", Color: "black"},
		{Content: "ok", AuthorName: "A"},
	}
	for _, in := range cases {
		in.Client = f.client()
		_, err := f.engine.CreateMessage(ctx, in)
		if !errors.Is(err, moderation.ErrValidationFailed) {
			t.Fatalf("expected ErrValidationFailed for %+v, got %v", in, err)
		}
	}
	n, _ := f.messages.Count(ctx, moderation.Filter{Deleted: moderation.IncludeDeleted})
	if n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestInvalidSubmissionDoesNotConsumeQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client()
	for i := 0; i < 20; i++ {
		_, _ = f.engine.CreateMessage(ctx, moderation.CreateMessageInput{Content: "", Client: client})
	}
	for i := 0; i < 10; i++ {
		if _, err := f.engine.CreateMessage(ctx, moderation.CreateMessageInput{Content: "valid", Client: client}); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
		f.clock.Advance(time.Minute)
	}
}

func TestCreateMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client()
	start := f.clock.Now()
	for i := 0; i < 10; i++ {
		if _, err := f.engine.CreateMessage(ctx, moderation.CreateMessageInput{Content: "note", Client: client}); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
		f.clock.Advance(31 * time.Second)
	}

	_, err := f.engine.CreateMessage(ctx, moderation.CreateMessageInput{Content: "note", Client: client})
	if !errors.Is(err, moderation.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	var merr *moderation.Error
	if !errors.As(err, &merr) || !merr.ResetAt.Equal(start.Add(24*time.Hour)) {
		t.Fatalf("expected reset at window end, got %v", err)
	}
	if f.events.count(moderation.EventRateLimited) != 1 {
		t.Fatalf("expected a rate_limited event")
	}
	n, _ := f.messages.Count(ctx, moderation.Filter{Status: string(models.StatusPending)})
	if n != 10 {
		t.Fatalf("expected 10 stored messages, got %d", n)
	}
}

func TestPendingMessagesAreNotPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.pendingMessage(t)
	approved := f.approvedMessage(t)

	public, err := f.engine.ListPublicMessages(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 1 || public[0].ID != approved.ID {
		t.Fatalf("expected only the approved message, got %+v", public)
	}

	all, err := f.engine.ListMessages(ctx, moderation.Filter{})
	if err != nil {
		t.Fatalf("list admin: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see both, got %d", len(all))
	}
	onlyPending, _ := f.engine.ListMessages(ctx, moderation.Filter{Status: "PENDING"})
	if len(onlyPending) != 1 || onlyPending[0].ID != pending.ID {
		t.Fatalf("expected status filter to be case-insensitive, got %+v", onlyPending)
	}
}

func TestTransitionMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.pendingMessage(t)
	f.clock.Advance(time.Minute)

	approved, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusApproved, "mod-1", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	st := approved.Moderation
	if st.Status != models.StatusApproved || st.ModeratedBy != "mod-1" || st.ModeratedAt == nil || !st.ModeratedAt.Equal(f.clock.Now()) {
		t.Fatalf("unexpected moderation block %+v", st)
	}
	if !approved.UpdatedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected UpdatedAt to move")
	}

	// Same state is a successful no-op.
	f.clock.Advance(time.Minute)
	again, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusApproved, "mod-2", "")
	if err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
	if again.Moderation.ModeratedBy != "mod-1" || !again.UpdatedAt.Equal(approved.UpdatedAt) {
		t.Fatalf("expected unchanged entity, got %+v", again)
	}
	if f.events.count(moderation.EventMessageApproved) != 1 {
		t.Fatalf("expected a single approval event")
	}

	// Cross-terminal override.
	rejected, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusRejected, "mod-2", "spam")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Moderation.Status != models.StatusRejected || rejected.Moderation.RejectionReason != "spam" || rejected.Moderation.ModeratedBy != "mod-2" {
		t.Fatalf("unexpected rejection %+v", rejected.Moderation)
	}

	reapproved, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusApproved, "mod-3", "")
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if reapproved.Moderation.RejectionReason != "" {
		t.Fatalf("expected approval to clear the rejection reason")
	}
}

func TestTransitionMessageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.pendingMessage(t)

	cases := []struct {
		name   string
		id     string
		to     models.Status
		mod    string
		reason string
		want   error
	}{
		{"unknown id", "missing", models.StatusApproved, "mod-1", "", moderation.ErrNotFound},
		{"back to pending", msg.ID, models.StatusPending, "mod-1", "", moderation.ErrIllegalTransition},
		{"bogus status", msg.ID, models.Status("archived"), "mod-1", "", moderation.ErrIllegalTransition},
		{"reject without reason", msg.ID, models.StatusRejected, "mod-1", "  ", moderation.ErrMissingReason},
		{"reason too long", msg.ID, models.StatusRejected, "mod-1", strings.Repeat("r", 201), moderation.ErrValidationFailed},
		{"no moderator", msg.ID, models.StatusApproved, "", "", moderation.ErrValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.TransitionMessage(ctx, tc.id, tc.to, tc.mod, tc.reason)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	stored, _ := f.messages.Get(ctx, msg.ID)
	if stored.Moderation.Status != models.StatusPending {
		t.Fatalf("failed transitions must not change state, got %s", stored.Moderation.Status)
	}

	var merr *moderation.Error
	_, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusPending, "mod-1", "")
	if !errors.As(err, &merr) || merr.From != models.StatusPending || merr.To != models.StatusPending {
		t.Fatalf("expected transition details, got %v", err)
	}
}

func TestSoftDeleteAndRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.pendingMessage(t)
	rejected, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusRejected, "mod-1", "off topic")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	if err := f.engine.SoftDeleteMessage(ctx, msg.ID, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.engine.SoftDeleteMessage(ctx, msg.ID, "mod-1"); !errors.Is(err, moderation.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	if _, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusApproved, "mod-1", ""); !errors.Is(err, moderation.ErrAlreadyDeleted) {
		t.Fatalf("expected transition on deleted to fail, got %v", err)
	}

	visible, _ := f.engine.ListMessages(ctx, moderation.Filter{})
	if len(visible) != 0 {
		t.Fatalf("expected deleted message hidden from default admin list")
	}
	deleted, _ := f.engine.ListMessages(ctx, moderation.Filter{Deleted: moderation.OnlyDeleted})
	if len(deleted) != 1 || deleted[0].Moderation.DeletedBy != "mod-1" {
		t.Fatalf("expected deleted-only listing to show it, got %+v", deleted)
	}

	restored, err := f.engine.RestoreMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, want := restored.Moderation, rejected.Moderation
	if got.Status != want.Status || got.RejectionReason != want.RejectionReason || got.ModeratedBy != want.ModeratedBy {
		t.Fatalf("expected moderation state to survive the round trip, got %+v want %+v", got, want)
	}
	if got.IsDeleted || got.DeletedAt != nil || got.DeletedBy != "" {
		t.Fatalf("expected delete marker cleared, got %+v", got)
	}
	if _, err := f.engine.RestoreMessage(ctx, msg.ID); !errors.Is(err, moderation.ErrNotDeleted) {
		t.Fatalf("expected ErrNotDeleted, got %v", err)
	}
	if err := f.engine.SoftDeleteMessage(ctx, "missing", "mod-1"); !errors.Is(err, moderation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletedApprovedMessageLeavesPublicListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.approvedMessage(t)
	if err := f.engine.SoftDeleteMessage(ctx, msg.ID, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	public, _ := f.engine.ListPublicMessages(ctx, 0, 0)
	if len(public) != 0 {
		t.Fatalf("expected deleted message hidden, got %+v", public)
	}
	if _, err := f.engine.RestoreMessage(ctx, msg.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	public, _ = f.engine.ListPublicMessages(ctx, 0, 0)
	if len(public) != 1 {
		t.Fatalf("expected restored approved message visible again")
	}
}

func TestCreateCommentRequiresVisibleParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.pendingMessage(t)
	deleted := f.approvedMessage(t)
	if err := f.engine.SoftDeleteMessage(ctx, deleted.ID, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, id := range []string{pending.ID, deleted.ID, "missing"} {
		_, err := f.engine.CreateComment(ctx, moderation.CreateCommentInput{MessageID: id, Content: "hi", Client: f.client()})
		if !errors.Is(err, moderation.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for parent %q, got %v", id, err)
		}
	}

	parent := f.approvedMessage(t)
	c := f.pendingComment(t, parent.ID)
	if c.MessageID != parent.ID || c.Moderation.Status != models.StatusPending {
		t.Fatalf("unexpected comment %+v", c)
	}
	if _, err := f.engine.CreateComment(ctx, moderation.CreateCommentInput{MessageID: parent.ID, Content: strings.Repeat("c", 501), Client: f.client()}); !errors.Is(err, moderation.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for a long comment, got %v", err)
	}
}

func TestCreateCommentPerMessageLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.client()
	a := f.approvedMessage(t)
	b := f.approvedMessage(t)

	for i := 0; i < 3; i++ {
		if _, err := f.engine.CreateComment(ctx, moderation.CreateCommentInput{MessageID: a.ID, Content: "hi", Client: client}); err != nil {
			t.Fatalf("comment %d: %v", i+1, err)
		}
	}
	if _, err := f.engine.CreateComment(ctx, moderation.CreateCommentInput{MessageID: a.ID, Content: "hi", Client: client}); !errors.Is(err, moderation.ErrRateLimitExceeded) {
		t.Fatalf("expected per-message limit, got %v", err)
	}
	if _, err := f.engine.CreateComment(ctx, moderation.CreateCommentInput{MessageID: b.ID, Content: "hi", Client: client}); err != nil {
		t.Fatalf("expected another message to accept comments: %v", err)
	}
}

func TestPublicCommentsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.approvedMessage(t)
	pending := f.pendingComment(t, parent.ID)
	f.clock.Advance(time.Second)
	visible := f.pendingComment(t, parent.ID)
	if _, err := f.engine.TransitionComment(ctx, visible.ID, models.StatusApproved, "mod-1", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	public, err := f.engine.ListPublicComments(ctx, parent.ID, 0, 0)
	if err != nil {
		t.Fatalf("list public comments: %v", err)
	}
	if len(public) != 1 || public[0].ID != visible.ID {
		t.Fatalf("expected only the approved comment, got %+v", public)
	}

	admin, _ := f.engine.ListComments(ctx, moderation.Filter{MessageID: parent.ID})
	if len(admin) != 2 || admin[0].ID != visible.ID || admin[1].ID != pending.ID {
		t.Fatalf("expected newest first, got %+v", admin)
	}

	hidden := f.pendingMessage(t)
	if _, err := f.engine.ListPublicComments(ctx, hidden.ID, 0, 0); !errors.Is(err, moderation.ErrNotFound) {
		t.Fatalf("expected comments of a pending message to be hidden, got %v", err)
	}
}

func TestAutoRejectComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.approvedMessage(t)
	c := f.pendingComment(t, parent.ID)

	rejected, err := f.engine.AutoRejectComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("auto reject: %v", err)
	}
	if rejected.Moderation.Status != models.StatusRejected || rejected.Moderation.ModeratedBy != moderation.AutoModerator {
		t.Fatalf("unexpected auto rejection %+v", rejected.Moderation)
	}
	if rejected.Moderation.RejectionReason == "" {
		t.Fatalf("expected a system reason")
	}

	f.clock.Advance(time.Minute)
	again, err := f.engine.AutoRejectComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("repeat auto reject: %v", err)
	}
	if !again.UpdatedAt.Equal(rejected.UpdatedAt) {
		t.Fatalf("expected no-op on an already rejected comment")
	}
	if f.events.count(moderation.EventCommentAutoReject) != 1 {
		t.Fatalf("expected one auto-reject event")
	}

	if err := f.engine.SoftDeleteComment(ctx, c.ID, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.engine.AutoRejectComment(ctx, c.ID); !errors.Is(err, moderation.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
}

func TestCommentLifecycleMirrorsMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.approvedComment(t)

	if _, err := f.engine.TransitionComment(ctx, c.ID, models.StatusRejected, "mod-1", ""); !errors.Is(err, moderation.ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
	if err := f.engine.SoftDeleteComment(ctx, c.ID, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	public, _ := f.engine.ListPublicComments(ctx, c.MessageID, 0, 0)
	if len(public) != 0 {
		t.Fatalf("expected deleted comment hidden")
	}
	restored, err := f.engine.RestoreComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Moderation.Status != models.StatusApproved {
		t.Fatalf("expected restore to keep approved status, got %s", restored.Moderation.Status)
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.pendingMessage(t).ID)
		f.clock.Advance(time.Second)
	}

	page, err := f.engine.ListMessages(ctx, moderation.Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[2] {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := f.engine.ListMessages(ctx, moderation.Filter{Offset: -1}); !errors.Is(err, moderation.ErrValidationFailed) {
		t.Fatalf("expected negative offset to fail, got %v", err)
	}
	if _, err := f.engine.ListMessages(ctx, moderation.Filter{Status: "archived"}); !errors.Is(err, moderation.ErrValidationFailed) {
		t.Fatalf("expected unknown status to fail, got %v", err)
	}
	all, _ := f.engine.ListMessages(ctx, moderation.Filter{Limit: 1000})
	if len(all) != 5 {
		t.Fatalf("expected clamped limit to still return all 5, got %d", len(all))
	}
}

func TestCancelledContextLeavesEntityUnchanged(t *testing.T) {
	f := newFixture(t)
	msg := f.pendingMessage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.engine.TransitionMessage(ctx, msg.ID, models.StatusApproved, "mod-1", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	stored, _ := f.messages.Get(context.Background(), msg.ID)
	if stored.Moderation.Status != models.StatusPending {
		t.Fatalf("expected pending after a cancelled transition, got %s", stored.Moderation.Status)
	}
}

func TestCommentUnderDeletedParentStaysHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.approvedMessage(t)
	c := f.pendingComment(t, parent.ID)

	// The parent goes away after the comment was admitted.
	if err := f.engine.SoftDeleteMessage(ctx, parent.ID, "mod-1"); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	if _, err := f.engine.TransitionComment(ctx, c.ID, models.StatusApproved, "mod-1", ""); err != nil {
		t.Fatalf("approve comment: %v", err)
	}
	if _, err := f.engine.ListPublicComments(ctx, parent.ID, 0, 0); !errors.Is(err, moderation.ErrNotFound) {
		t.Fatalf("expected comments of a deleted parent to be hidden, got %v", err)
	}

	if _, err := f.engine.RestoreMessage(ctx, parent.ID); err != nil {
		t.Fatalf("restore parent: %v", err)
	}
	public, err := f.engine.ListPublicComments(ctx, parent.ID, 0, 0)
	if err != nil {
		t.Fatalf("list public comments: %v", err)
	}
	if len(public) != 1 || public[0].ID != c.ID {
		t.Fatalf("expected the approved comment back with its parent, got %+v", public)
	}
}
