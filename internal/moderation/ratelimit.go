package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PolicyName identifies an independent rate-limit policy.
type PolicyName string

const (
	PolicyMessage           PolicyName = "message"
	PolicyComment           PolicyName = "comment"
	PolicyCommentPerMessage PolicyName = "comment_per_message"
	PolicyViolationReport   PolicyName = "violation_report"
)

// Policy is a fixed window of Limit admissions, plus an optional minimum gap
// between consecutive admissions.
type Policy struct {
	Name     PolicyName
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

// DefaultPolicies returns the stock policy set.
func DefaultPolicies() map[PolicyName]Policy {
	return map[PolicyName]Policy{
		PolicyMessage:           {Name: PolicyMessage, Limit: 10, Window: 24 * time.Hour, Cooldown: 30 * time.Second},
		PolicyComment:           {Name: PolicyComment, Limit: 5, Window: 10 * time.Minute},
		PolicyCommentPerMessage: {Name: PolicyCommentPerMessage, Limit: 3, Window: time.Hour},
		PolicyViolationReport:   {Name: PolicyViolationReport, Limit: 5, Window: time.Hour},
	}
}

// Decision is the result of a rate-limit check. When Allowed is false,
// ResetAt is when the blocking policy admits again and Policy names it.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Policy    PolicyName
}

// RetryAfter is the wait until ResetAt, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	if rounded := wait.Truncate(time.Second); rounded != wait {
		return rounded + time.Second
	}
	return wait
}

// Request is one policy (optionally scoped, e.g. by message id) in a
// combined check.
type Request struct {
	Policy PolicyName
	Scope  string
}

// RateLimiter admits submissions against per-client fixed windows. Counting
// happens in the same atomic step as the decision.
type RateLimiter struct {
	Store    WindowStore
	Clock    Clock
	Policies map[PolicyName]Policy
	Logger   *slog.Logger
}

func NewRateLimiter(store WindowStore, clock Clock, policies map[PolicyName]Policy, logger *slog.Logger) *RateLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &RateLimiter{Store: store, Clock: clock, Policies: policies, Logger: logger}
}

// Check admits one action of client under policy.
func (l *RateLimiter) Check(ctx context.Context, policy PolicyName, client ClientID, scope ...string) (Decision, error) {
	return l.CheckAll(ctx, client, Request{Policy: policy, Scope: strings.Join(scope, ":")})
}

// CheckAll admits one action against several policies at once: either every
// counter is incremented or none is.
func (l *RateLimiter) CheckAll(ctx context.Context, client ClientID, reqs ...Request) (Decision, error) {
	if len(reqs) == 0 {
		return Decision{}, fmt.Errorf("rate limiter: no policies requested")
	}
	slots := make([]Slot, 0, len(reqs))
	policies := make([]Policy, 0, len(reqs))
	for _, req := range reqs {
		p, ok := l.Policies[req.Policy]
		if !ok {
			return Decision{}, fmt.Errorf("rate limiter: unknown policy %q", req.Policy)
		}
		policies = append(policies, p)
		slots = append(slots, Slot{
			Key:      windowKey(p.Name, client, req.Scope),
			Limit:    p.Limit,
			Window:   p.Window,
			Cooldown: p.Cooldown,
		})
	}

	now := l.now()
	adm, err := l.Store.Admit(ctx, now, slots...)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limiter admit: %w", err)
	}

	if !adm.Allowed {
		p := policies[adm.Blocked]
		st := adm.Slots[adm.Blocked]
		resetAt := st.ResetAt
		remaining := max(p.Limit-st.Count, 0)
		if remaining > 0 {
			// blocked by cooldown, not by the count
			resetAt = st.ReadyAt
		}
		resolveLogger(l.Logger).Info("rate limit exceeded",
			"event", "rate_limit_exceeded",
			"module", "moderation",
			"layer", "application",
			"policy", string(p.Name),
			"client_id", string(client),
			"reset_at", resetAt,
		)
		return Decision{Allowed: false, Remaining: remaining, ResetAt: resetAt, Policy: p.Name}, nil
	}

	d := Decision{Allowed: true, Remaining: -1}
	for i, p := range policies {
		st := adm.Slots[i]
		left := max(p.Limit-st.Count, 0)
		if d.Remaining < 0 || left < d.Remaining {
			d.Remaining = left
			d.ResetAt = st.ResetAt
			d.Policy = p.Name
		}
	}
	return d, nil
}

func (l *RateLimiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func windowKey(policy PolicyName, client ClientID, scope string) string {
	key := "rl:" + string(policy) + ":" + string(client)
	if scope != "" {
		key += ":" + scope
	}
	return key
}
