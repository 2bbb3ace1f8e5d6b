package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"security-gate/internal/domain"
	"security-gate/internal/logger"
)

// Headers e cookie de onde vêm sessão e token
const (
	CSRFTokenHeader = "X-CSRF-Token"
	SessionHeader   = "X-Session-ID"
	SessionCookie   = "session_id"
)

// CSRFMiddleware exige origem permitida e token válido em métodos que
// alteram estado
type CSRFMiddleware struct {
	protector      domain.CSRFProtector
	allowedOrigins map[string]struct{}
	logger         domain.Logger
	now            func() time.Time
}

// NewCSRFMiddleware cria o middleware; com a proteção desligada ele apenas
// repassa a requisição
func NewCSRFMiddleware(
	protector domain.CSRFProtector,
	security domain.SecurityConfig,
	log domain.Logger,
	now func() time.Time,
) gin.HandlerFunc {
	if !security.EnableCSRFProtection {
		return func(c *gin.Context) { c.Next() }
	}

	if now == nil {
		now = time.Now
	}

	origins := make(map[string]struct{}, len(security.AllowedOrigins))
	for _, origin := range security.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			origins[strings.ToLower(origin)] = struct{}{}
		}
	}

	middleware := &CSRFMiddleware{
		protector:      protector,
		allowedOrigins: origins,
		logger:         log,
		now:            now,
	}

	return middleware.Handle
}

// Handle é o handler principal do middleware
func (m *CSRFMiddleware) Handle(c *gin.Context) {
	if isSafeMethod(c.Request.Method) {
		c.Next()
		return
	}

	log := m.logger.WithContext(c.Request.Context())

	if origin := c.GetHeader("Origin"); origin != "" && !m.originAllowed(origin) {
		log.Warn("Request origin not allowed", map[string]interface{}{
			"origin": origin,
		})
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Access denied",
			"message": "Origin not allowed",
		})
		return
	}

	session := SessionID(c)
	token := c.GetHeader(CSRFTokenHeader)

	if session == "" || token == "" || !m.protector.Verify(token, session, m.now()) {
		log.Warn("CSRF validation failed", map[string]interface{}{
			"session":   logger.MaskSecret(session),
			"has_token": token != "",
		})
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "CSRF validation failed",
			"message": "Missing or invalid CSRF token",
		})
		return
	}

	c.Next()
}

func (m *CSRFMiddleware) originAllowed(origin string) bool {
	if len(m.allowedOrigins) == 0 {
		return true
	}
	_, ok := m.allowedOrigins[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// SessionID extrai a sessão do header X-Session-ID ou do cookie session_id
func SessionID(c *gin.Context) string {
	if session := strings.TrimSpace(c.GetHeader(SessionHeader)); session != "" {
		return session
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
