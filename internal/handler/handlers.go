package handler

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"security-gate/internal/domain"
	"security-gate/internal/logger"
	"security-gate/internal/middleware"
)

const (
	serviceName        = "Security Gate API"
	defaultEventsLimit = 50
	maxEventsLimit     = 1000
)

// Dependencies agrupa o que os handlers precisam
type Dependencies struct {
	Limiter    domain.RateLimiter
	CSRF       domain.CSRFProtector
	Store      domain.ClientWindowStore
	Events     domain.EventSink
	Gate       gin.HandlerFunc
	CSRFGuard  gin.HandlerFunc
	Prometheus http.Handler
	CSRFTTL    time.Duration
	Logger     domain.Logger
	Now        func() time.Time
}

// Handlers contém os handlers da API
type Handlers struct {
	limiter    domain.RateLimiter
	csrf       domain.CSRFProtector
	store      domain.ClientWindowStore
	events     domain.EventSink
	gate       gin.HandlerFunc
	csrfGuard  gin.HandlerFunc
	prometheus http.Handler
	csrfTTL    time.Duration
	logger     domain.Logger
	now        func() time.Time
	startTime  time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(deps Dependencies) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CSRFTTL <= 0 {
		deps.CSRFTTL = time.Hour
	}

	return &Handlers{
		limiter:    deps.Limiter,
		csrf:       deps.CSRF,
		store:      deps.Store,
		events:     deps.Events,
		gate:       deps.Gate,
		csrfGuard:  deps.CSRFGuard,
		prometheus: deps.Prometheus,
		csrfTTL:    deps.CSRFTTL,
		logger:     deps.Logger,
		now:        deps.Now,
		startTime:  time.Now(),
	}
}

// SetupRoutes configura as rotas da API. O gate é global, então também
// cobre rotas inexistentes.
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	if h.gate != nil {
		router.Use(h.gate)
	}

	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", h.MetricsHandler)
	if h.prometheus != nil {
		router.GET("/metrics/prometheus", gin.WrapH(h.prometheus))
	}
	router.GET("/csrf-token", h.CSRFTokenHandler)

	router.GET("/", h.ExampleHandler)

	guarded := router.Group("/")
	if h.csrfGuard != nil {
		guarded.Use(h.csrfGuard)
	}
	{
		guarded.POST("/echo", h.EchoHandler)
	}

	admin := router.Group("/admin")
	{
		admin.GET("/status", h.AdminStatusHandler)
		admin.POST("/reset", h.AdminResetHandler)
		admin.GET("/events", h.AdminEventsHandler)
	}
}

// HealthHandler verifica storage e sink de eventos
func (h *Handlers) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if h.store != nil {
		if err := h.store.Health(ctx); err != nil {
			checks["storage"] = err.Error()
			healthy = false
		} else {
			checks["storage"] = "ok"
		}
	}

	if h.events != nil {
		if err := h.events.Health(ctx); err != nil {
			checks["events"] = err.Error()
			healthy = false
		} else {
			checks["events"] = "ok"
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
		h.logger.WithContext(c.Request.Context()).Warn("Health check degraded", map[string]interface{}{
			"checks": checks,
		})
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// ExampleHandler implementa um endpoint de exemplo protegido pelo gate
func (h *Handlers) ExampleHandler(c *gin.Context) {
	clientIP := middleware.GetClientIP(c)

	h.logger.WithContext(c.Request.Context()).Debug("Example endpoint accessed", map[string]interface{}{
		"path": c.Request.URL.Path,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":   "Hello from Security Gate API!",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"client_ip": clientIP,
		"path":      c.Request.URL.Path,
		"method":    c.Request.Method,
	})
}

// EchoHandler devolve o JSON recebido; exige token CSRF
func (h *Handlers) EchoHandler(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid JSON body",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CSRFTokenHandler emite um token para a sessão do chamador
func (h *Handlers) CSRFTokenHandler(c *gin.Context) {
	session := middleware.SessionID(c)
	if session == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "session id is required (X-Session-ID header or session_id cookie)",
		})
		return
	}

	token := h.csrf.Issue(session, h.now())

	h.logger.WithContext(c.Request.Context()).Debug("CSRF token issued", map[string]interface{}{
		"session": logger.MaskSecret(session),
	})

	c.JSON(http.StatusOK, gin.H{
		"csrf_token": token,
		"expires_in": int(h.csrfTTL / time.Second),
	})
}

// MetricsHandler implementa endpoint de métricas do sistema
func (h *Handlers) MetricsHandler(c *gin.Context) {
	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := gin.H{
		"service":        serviceName,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"system": gin.H{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": formatBytes(m.Alloc),
			"memory_total": formatBytes(m.TotalAlloc),
			"memory_sys":   formatBytes(m.Sys),
			"gc_runs":      m.NumGC,
		},
	}

	if h.store != nil {
		response["tracked_clients"] = h.store.Len()
	}

	c.JSON(http.StatusOK, response)
}

// AdminStatusHandler retorna o estado das janelas de um cliente
func (h *Handlers) AdminStatusHandler(c *gin.Context) {
	client := strings.TrimSpace(c.Query("client"))
	if client == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "client parameter is required",
		})
		return
	}

	status, ok := h.limiter.Status(client, h.now())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "client has no recorded requests",
		})
		return
	}

	response := gin.H{
		"client":     status.ClientID,
		"burst":      status.Burst,
		"counts":     status.Counts,
		"limits":     status.Limits,
		"is_blocked": status.IsBlocked,
		"last_seen":  status.LastSeen.UTC().Format(time.RFC3339),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if status.BlockedUntil != nil {
		response["blocked_until"] = status.BlockedUntil.Unix()
	}

	c.JSON(http.StatusOK, response)
}

// AdminResetRequest representa o corpo da requisição para reset
type AdminResetRequest struct {
	Client string `json:"client" binding:"required"`
}

// AdminResetHandler remove janelas e bloqueio de um cliente
func (h *Handlers) AdminResetHandler(c *gin.Context) {
	var req AdminResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	req.Client = strings.TrimSpace(req.Client)
	existed := h.limiter.Reset(req.Client)

	h.logger.WithContext(c.Request.Context()).Info("Admin reset endpoint accessed", map[string]interface{}{
		"client":  req.Client,
		"existed": existed,
	})

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Client state reset successfully",
		"client":    req.Client,
		"existed":   existed,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AdminEventsHandler lista os eventos de segurança mais recentes
func (h *Handlers) AdminEventsHandler(c *gin.Context) {
	limit := defaultEventsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("Failed to list security events", err, map[string]interface{}{
			"limit": limit,
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Failed to retrieve security events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// formatBytes formata bytes em formato legível
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + "KMGTPE"[exp:exp+1] + "B"
}
