package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

const (
	identityKey  = "stickyboard.identity"
	moderatorKey = "stickyboard.moderator"

	// DefaultModerator is recorded when an admin request carries no X-Admin-Id.
	DefaultModerator = "admin"
)

// AdminAuthMiddleware checks the X-Admin-Token header against token.
func AdminAuthMiddleware(token string) gin.HandlerFunc {
	// Fail closed on a misconfigured server.
	if token == "" {
		panic("admin token must not be empty")
	}
	required := []byte(token)

	return func(c *gin.Context) {
		supplied := c.GetHeader("X-Admin-Token")
		if supplied == "" {
			writeErrorBody(c, http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: "admin token required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(supplied), required) != 1 {
			writeErrorBody(c, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "invalid admin token"})
			return
		}

		moderator := strings.TrimSpace(c.GetHeader("X-Admin-Id"))
		if moderator == "" {
			moderator = DefaultModerator
		}
		c.Set(moderatorKey, moderator)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds basic security headers. The API serves no
// HTML, so the CSP denies everything.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// ClientIdentityMiddleware derives the anonymous client identity once per
// request.
func ClientIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, moderation.Identify(moderation.RequestMetadata{
			ForwardedFor:   c.GetHeader("X-Forwarded-For"),
			RealIP:         c.GetHeader("X-Real-IP"),
			RemoteAddr:     c.Request.RemoteAddr,
			UserAgent:      c.GetHeader("User-Agent"),
			AcceptLanguage: c.GetHeader("Accept-Language"),
		}))
		c.Next()
	}
}

func identityOf(c *gin.Context) moderation.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(moderation.Identity); ok {
			return id
		}
	}
	return moderation.Identify(moderation.RequestMetadata{RemoteAddr: c.Request.RemoteAddr})
}

func moderatorOf(c *gin.Context) string {
	if v := c.GetString(moderatorKey); v != "" {
		return v
	}
	return DefaultModerator
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"event", "http_request",
			"module", "internal/http",
			"layer", "transport",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// --- Interaction throttle ---

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientThrottle is a token bucket per ClientID. It smooths bursts of
// like/dislike/report clicks; the fixed-window policies still govern
// submissions.
type ClientThrottle struct {
	mu       sync.Mutex
	visitors map[moderation.ClientID]*visitor
	rps      rate.Limit
	burst    int
}

func NewClientThrottle(r rate.Limit, b int) *ClientThrottle {
	return &ClientThrottle{
		visitors: make(map[moderation.ClientID]*visitor),
		rps:      r,
		burst:    b,
	}
}

func (t *ClientThrottle) Allow(id moderation.ClientID) bool {
	t.mu.Lock()
	v, ok := t.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.visitors[id] = v
	}
	v.lastSeen = time.Now()
	t.mu.Unlock()
	return v.limiter.Allow()
}

// Sweep forgets clients idle for longer than idle.
func (t *ClientThrottle) Sweep(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for id, v := range t.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(t.visitors, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps idle clients every interval until ctx is done.
func (t *ClientThrottle) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(idle)
		}
	}
}

func ThrottleMiddleware(t *ClientThrottle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Allow(identityOf(c).ID) {
			c.Header("Retry-After", "1")
			writeErrorBody(c, http.StatusTooManyRequests, errorBody{
				Code:    string(moderation.KindRateLimitExceeded),
				Message: "too many requests, please slow down",
				Details: map[string]any{"retryAfterSeconds": 1},
			})
			return
		}
		c.Next()
	}
}
