package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/peer-exchange/internal/api/dto"
)

// ClientIDHeader identifies the submitting client on mutating requests.
const ClientIDHeader = "X-Client-ID"

// RateLimiter allows one request per client per interval.
type RateLimiter struct {
	clients   map[string]time.Time
	mu        sync.Mutex
	limit     time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

// Allow records a request of clientID and reports whether it is within the limit.
func (r *RateLimiter) Allow(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	if last, ok := r.clients[clientID]; ok && now.Sub(last) < r.limit {
		return false
	}
	r.clients[clientID] = now
	return true
}

// sweep drops clients whose interval has passed, at most once per interval.
func (r *RateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.limit {
		return
	}
	r.lastSweep = now
	for id, last := range r.clients {
		if now.Sub(last) >= r.limit {
			delete(r.clients, id)
		}
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(ClientIDHeader)
		if clientID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: ClientIDHeader + " header required"})
			return
		}
		if !r.Allow(clientID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
