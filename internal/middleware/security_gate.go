package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"security-gate/internal/domain"
	"security-gate/internal/logger"
)

// Headers aplicados a todas as respostas
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
	"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'",
}

const outcomeError = "error"

// SecurityGateMiddleware orquestra filtro de IP, rate limiting e validação
// de conteúdo antes de chamar o handler
type SecurityGateMiddleware struct {
	limiter           domain.RateLimiter
	validator         domain.ContentValidator
	limits            domain.RateLimitConfig
	maxRequestSize    int64
	ipFilter          *IPFilter
	events            domain.EventSink
	metrics           domain.MetricsRecorder
	logger            domain.Logger
	trustProxyHeaders bool
	now               func() time.Time
}

// GateOption configura dependências opcionais do gate
type GateOption func(*SecurityGateMiddleware)

// WithEventSink registra requisições rejeitadas no sink
func WithEventSink(events domain.EventSink) GateOption {
	return func(m *SecurityGateMiddleware) { m.events = events }
}

// WithMetrics envia observações para o recorder
func WithMetrics(metrics domain.MetricsRecorder) GateOption {
	return func(m *SecurityGateMiddleware) { m.metrics = metrics }
}

// WithClock substitui o relógio usado pelo rate limiter
func WithClock(now func() time.Time) GateOption {
	return func(m *SecurityGateMiddleware) { m.now = now }
}

// WithTrustedProxyHeaders define se X-Forwarded-For e X-Real-IP são considerados
func WithTrustedProxyHeaders(trusted bool) GateOption {
	return func(m *SecurityGateMiddleware) { m.trustProxyHeaders = trusted }
}

// NewSecurityGateMiddleware cria o gate. Entradas inválidas em BlockedIPs
// são descartadas com warning; a configuração já as valida na carga.
func NewSecurityGateMiddleware(
	limiter domain.RateLimiter,
	validator domain.ContentValidator,
	limits domain.RateLimitConfig,
	security domain.SecurityConfig,
	log domain.Logger,
	opts ...GateOption,
) gin.HandlerFunc {
	return newSecurityGate(limiter, validator, limits, security, log, opts...).Handle
}

func newSecurityGate(
	limiter domain.RateLimiter,
	validator domain.ContentValidator,
	limits domain.RateLimitConfig,
	security domain.SecurityConfig,
	log domain.Logger,
	opts ...GateOption,
) *SecurityGateMiddleware {
	filter, err := NewIPFilter(security.BlockedIPs)
	if err != nil {
		log.Warn("Ignoring invalid blocked IP list", map[string]interface{}{
			"error": err.Error(),
		})
		filter = &IPFilter{}
	}

	m := &SecurityGateMiddleware{
		limiter:           limiter,
		validator:         validator,
		limits:            limits,
		maxRequestSize:    security.MaxRequestSize,
		ipFilter:          filter,
		logger:            log,
		trustProxyHeaders: true,
		now:               time.Now,
	}
	if m.maxRequestSize <= 0 {
		m.maxRequestSize = domain.DefaultSecurityConfig().MaxRequestSize
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// rejection descreve uma resposta terminal produzida pelo gate
type rejection struct {
	status  int
	verdict domain.Verdict
	body    gin.H
}

// Handle é o handler principal do middleware
func (m *SecurityGateMiddleware) Handle(c *gin.Context) {
	started := time.Now()

	requestID := m.getRequestID(c)
	clientIP := m.extractClientIP(c)

	ctx := logger.ContextWithRequestInfo(c.Request.Context(), requestID, clientIP, "", c.GetHeader("User-Agent"))
	c.Request = c.Request.WithContext(ctx)
	log := m.logger.WithContext(ctx)

	writer := &timingWriter{ResponseWriter: c.Writer, started: started}
	c.Writer = writer

	for name, value := range securityHeaders {
		c.Header(name, value)
	}

	var verdict domain.Verdict
	outcome := string(domain.VerdictAllowed)

	if rejected := m.screen(c, clientIP, log); rejected != nil {
		verdict = rejected.verdict
		outcome = string(verdict.Kind)
		if verdict.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(verdict.RetryAfter))
		}
		c.AbortWithStatusJSON(rejected.status, rejected.body)
	} else if failure := m.invokeDownstream(c, log); failure != nil {
		outcome = outcomeError
		verdict.Reason = failure.Error()
		if !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}

	writer.stamp()
	m.finalize(c, log, clientIP, requestID, outcome, verdict, time.Since(started))
}

// screen executa as etapas anteriores ao handler; nil significa seguir adiante
func (m *SecurityGateMiddleware) screen(c *gin.Context, clientIP string, log domain.Logger) *rejection {
	if !m.ipFilter.Empty() {
		blocked, parsed := m.ipFilter.Blocked(clientIP)
		if !parsed {
			log.Warn("Unparseable client address, skipping IP deny-list", map[string]interface{}{
				"client_ip": clientIP,
			})
		}
		if blocked {
			return &rejection{
				status:  http.StatusForbidden,
				verdict: domain.Verdict{Kind: domain.VerdictBlocked, Reason: "blocked IP address"},
				body:    gin.H{"error": "Access denied", "message": "IP address is blocked"},
			}
		}
	}

	verdict := m.limiter.Evaluate(clientIP, m.now())
	switch verdict.Kind {
	case domain.VerdictBlocked:
		return &rejection{
			status:  http.StatusForbidden,
			verdict: verdict,
			body: gin.H{
				"error":       "Access denied",
				"message":     "IP address is blocked",
				"retry_after": verdict.RetryAfter,
			},
		}
	case domain.VerdictRateLimited:
		return &rejection{
			status:  http.StatusTooManyRequests,
			verdict: verdict,
			body: gin.H{
				"error":       "Rate limit exceeded",
				"message":     verdict.Reason,
				"retry_after": verdict.RetryAfter,
			},
		}
	}

	m.setRateLimitHeaders(c, verdict.Counts)

	if result := m.validator.ValidateRequestLine(c.Request.URL.Path, decodedQuery(c.Request.URL), m.requestHeaders(c.Request)); !result.Valid {
		return &rejection{
			status:  http.StatusBadRequest,
			verdict: result.Verdict(),
			body:    gin.H{"error": "Invalid request", "message": "Request failed security validation"},
		}
	}

	if !hasBody(c.Request.Method) {
		return nil
	}

	raw, err := m.readBody(c.Request)
	if err != nil {
		log.Warn("Failed to read request body", map[string]interface{}{
			"error": err.Error(),
		})
		return &rejection{
			status:  http.StatusBadRequest,
			verdict: domain.Verdict{Kind: domain.VerdictSecurityRejected, Reason: "unreadable body"},
			body:    gin.H{"error": "Invalid request body", "message": "Request body failed security validation"},
		}
	}

	result := m.validator.ValidateBody(raw)
	if len(raw) > 0 {
		if contentType := m.validator.ValidateContentType(c.GetHeader("Content-Type")); !contentType.Valid {
			result.Valid = false
			result.Issues = append(result.Issues, contentType.Issues...)
		}
	}

	if !result.Valid {
		return &rejection{
			status:  http.StatusBadRequest,
			verdict: result.Verdict(),
			body:    gin.H{"error": "Invalid request body", "message": "Request body failed security validation"},
		}
	}

	return nil
}

// invokeDownstream chama os próximos handlers convertendo panics, erros
// sem resposta e cancelamentos em falha
func (m *SecurityGateMiddleware) invokeDownstream(c *gin.Context, log domain.Logger) (failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("panic: %v", r)
			log.Error("Downstream handler panicked", failure, map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
		}
	}()

	c.Next()

	if c.Writer.Written() {
		return nil
	}

	if err := c.Errors.Last(); err != nil {
		log.Error("Downstream handler failed", err.Err, map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		return err.Err
	}

	if err := c.Request.Context().Err(); err != nil {
		log.Error("Request context ended before response", err, map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		return err
	}

	return nil
}

// finalize emite o log único da requisição, o evento e as métricas
func (m *SecurityGateMiddleware) finalize(
	c *gin.Context,
	log domain.Logger,
	clientIP, requestID, outcome string,
	verdict domain.Verdict,
	elapsed time.Duration,
) {
	status := c.Writer.Status()

	fields := map[string]interface{}{
		"method":          c.Request.Method,
		"path":            c.Request.URL.Path,
		"outcome":         outcome,
		"processing_time": elapsed.Seconds(),
	}
	if verdict.Reason != "" {
		fields["reason"] = verdict.Reason
	}
	if len(verdict.Issues) > 0 {
		kinds := make([]string, 0, len(verdict.Issues))
		for _, issue := range verdict.Issues {
			kinds = append(kinds, string(issue.Kind))
		}
		fields["issues"] = kinds
	}
	logger.LogRequestOutcome(log, status, fields)

	if m.metrics != nil {
		m.metrics.ObserveRequest(outcome, status, elapsed)
		for _, issue := range verdict.Issues {
			m.metrics.ObserveIssue(issue.Kind)
		}
	}

	if m.events != nil && status >= http.StatusBadRequest {
		event := domain.SecurityEvent{
			ID:        uuid.New().String(),
			Timestamp: m.now(),
			RequestID: requestID,
			ClientIP:  clientIP,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    status,
			Outcome:   outcome,
			Reason:    verdict.Reason,
			Issues:    verdict.Issues,
		}
		if err := m.events.Record(context.Background(), event); err != nil {
			log.Debug("Security event not recorded", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// setRateLimitHeaders define os headers "<count>/<limit>" de cada janela
func (m *SecurityGateMiddleware) setRateLimitHeaders(c *gin.Context, counts domain.WindowCounts) {
	c.Header("X-RateLimit-Minute", fmt.Sprintf("%d/%d", counts.Minute, m.limits.RequestsPerMinute))
	c.Header("X-RateLimit-Hour", fmt.Sprintf("%d/%d", counts.Hour, m.limits.RequestsPerHour))
	c.Header("X-RateLimit-Day", fmt.Sprintf("%d/%d", counts.Day, m.limits.RequestsPerDay))
}

// requestHeaders garante que o tamanho declarado chegue ao validador
// mesmo quando o servidor removeu o header Content-Length
func (m *SecurityGateMiddleware) requestHeaders(req *http.Request) http.Header {
	if req.Header.Get("Content-Length") != "" || req.ContentLength <= 0 {
		return req.Header
	}
	headers := req.Header.Clone()
	headers.Set("Content-Length", strconv.FormatInt(req.ContentLength, 10))
	return headers
}

// readBody lê até maxRequestSize+1 bytes e restaura o corpo para o handler
func (m *SecurityGateMiddleware) readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(req.Body, m.maxRequestSize+1))
	req.Body.Close()
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

// extractClientIP extrai o IP do cliente considerando proxies e load balancers
func (m *SecurityGateMiddleware) extractClientIP(c *gin.Context) string {
	if m.trustProxyHeaders {
		// Prioridade: X-Forwarded-For > X-Real-IP > RemoteAddr
		if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if clientIP := strings.TrimSpace(first); clientIP != "" {
				return clientIP
			}
		}

		if xri := strings.TrimSpace(c.GetHeader("X-Real-IP")); xri != "" {
			return xri
		}
	}

	// Fallback para RemoteAddr (remove porta se presente)
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}

	return c.Request.RemoteAddr
}

// getRequestID obtém ou gera um Request ID para tracking
func (m *SecurityGateMiddleware) getRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// GetClientIP é uma função utilitária exportada para uso externo
func GetClientIP(c *gin.Context) string {
	middleware := &SecurityGateMiddleware{trustProxyHeaders: true}
	return middleware.extractClientIP(c)
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func decodedQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(u.RawQuery); err == nil {
		return decoded
	}
	return u.RawQuery
}

// timingWriter injeta X-Processing-Time imediatamente antes do envio dos headers
type timingWriter struct {
	gin.ResponseWriter
	started time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped || w.ResponseWriter.Written() {
		return
	}
	w.stamped = true
	w.Header().Set("X-Processing-Time", strconv.FormatFloat(time.Since(w.started).Seconds(), 'f', 3, 64))
}

func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

func (w *timingWriter) Flush() {
	w.stamp()
	w.ResponseWriter.Flush()
}
