package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/identity"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	ContextUserID = "user_id"
	ContextClaims = "claims"
	ContextToken  = "access_token"
)

type rateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per client IP.
type limiterSet struct {
	mu      sync.Mutex
	clients map[string]*rateLimiter
	every   time.Duration
	burst   int
	idle    time.Duration
}

func newLimiterSet(every time.Duration, burst int, idle time.Duration) *limiterSet {
	return &limiterSet{
		clients: make(map[string]*rateLimiter),
		every:   every,
		burst:   burst,
		idle:    idle,
	}
}

func (s *limiterSet) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	client, exists := s.clients[ip]
	if !exists {
		client = &rateLimiter{limiter: rate.NewLimiter(rate.Every(s.every), s.burst)}
		s.clients[ip] = client
	}
	client.lastSeen = now

	for clientIP, c := range s.clients {
		if now.Sub(c.lastSeen) > s.idle {
			delete(s.clients, clientIP)
		}
	}

	return client.limiter.Allow()
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

func RateLimit(cfg *config.Config) gin.HandlerFunc {
	limiters := newLimiterSet(time.Second/20, 20, 10*time.Minute)

	return func(c *gin.Context) {
		// Skip rate limiting in development mode
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		if !limiters.allow(c.ClientIP()) {
			abortJSON(c, http.StatusTooManyRequests, "over_request_rate_limit", "Rate limit exceeded")
			return
		}

		c.Next()
	}
}

// AuthRateLimit guards the credential endpoints with a tighter budget.
func AuthRateLimit(cfg *config.Config) gin.HandlerFunc {
	limiters := newLimiterSet(time.Minute/5, 10, 30*time.Minute)

	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		if !limiters.allow(c.ClientIP()) {
			abortJSON(c, http.StatusTooManyRequests, "over_request_rate_limit", "Authentication rate limit exceeded")
			return
		}

		c.Next()
	}
}

func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := false
		for _, allowedOrigin := range origins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, apikey, Prefer, Accept, X-Client-Info")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SecurityHeaders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

func LogRequests() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s %s\n",
			param.TimeStamp.Format("2006/01/02 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	})
}

// APIKey rejects requests that do not carry the project's anon key.
func APIKey(anonKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("apikey")
		if key == "" {
			key = c.Query("apikey")
		}

		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(anonKey)) != 1 {
			abortJSON(c, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Bearer resolves the caller. The anon key, or no token at all, makes the
// request anonymous; a user access token sets user_id and claims. Invalid
// tokens are rejected.
func Bearer(ids *identity.Service, anonKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" || token == anonKey {
			c.Next()
			return
		}

		claims, err := ids.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature, token is expired or session was signed out")
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// RequireUser aborts anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserID) == "" {
			abortJSON(c, http.StatusUnauthorized, "no_authorization", "This endpoint requires a valid Bearer token")
			return
		}
		c.Next()
	}
}
