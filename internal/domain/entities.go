package domain

import (
	"errors"
	"time"
)

// Horizontes de retenção das janelas deslizantes
const (
	BurstWindow  = 10 * time.Second
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
	DayWindow    = 24 * time.Hour
)

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrSinkUnavailable = errors.New("event sink unavailable")
)

// VerdictKind identifica a variante de um Verdict
type VerdictKind string

const (
	VerdictAllowed          VerdictKind = "allowed"
	VerdictRateLimited      VerdictKind = "rate_limited"
	VerdictBlocked          VerdictKind = "blocked"
	VerdictSecurityRejected VerdictKind = "security_rejected"
)

// IssueKind classifica um problema encontrado na validação de conteúdo
type IssueKind string

const (
	IssueRequestTooLarge        IssueKind = "request_too_large"
	IssueBlockedUserAgent       IssueKind = "blocked_user_agent"
	IssueSQLInjection           IssueKind = "sql_injection_attempt"
	IssueXSS                    IssueKind = "xss_attempt"
	IssuePathTraversal          IssueKind = "path_traversal_attempt"
	IssueMaliciousUpload        IssueKind = "malicious_upload"
	IssueUnsupportedContentType IssueKind = "unsupported_content_type"
)

// Issue descreve uma violação encontrada pelo validador
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// WindowCounts contém a quantidade de requisições em cada janela
type WindowCounts struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// Verdict é o resultado de uma etapa de avaliação da requisição.
// Apenas os campos relevantes para Kind são preenchidos.
type Verdict struct {
	Kind       VerdictKind  `json:"kind"`
	Reason     string       `json:"reason,omitempty"`
	RetryAfter int          `json:"retryAfter,omitempty"` // segundos
	Counts     WindowCounts `json:"counts"`
	Issues     []Issue      `json:"issues,omitempty"`
}

// Allowed indica se a requisição pode seguir no pipeline
func (v Verdict) Allowed() bool {
	return v.Kind == VerdictAllowed
}

// ValidationResult é o retorno do validador de conteúdo
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Verdict converte o resultado da validação em um Verdict
func (r ValidationResult) Verdict() Verdict {
	if r.Valid {
		return Verdict{Kind: VerdictAllowed}
	}
	return Verdict{Kind: VerdictSecurityRejected, Issues: r.Issues}
}

// ClientWindowState guarda os timestamps de cada janela de um cliente
type ClientWindowState struct {
	Burst        []time.Time `json:"burst"`
	Minute       []time.Time `json:"minute"`
	Hour         []time.Time `json:"hour"`
	Day          []time.Time `json:"day"`
	BlockedUntil *time.Time  `json:"blockedUntil,omitempty"`
	LastSeen     time.Time   `json:"lastSeen"`
}

// Clone cria uma cópia profunda do estado
func (s *ClientWindowState) Clone() *ClientWindowState {
	c := &ClientWindowState{
		Burst:    append([]time.Time(nil), s.Burst...),
		Minute:   append([]time.Time(nil), s.Minute...),
		Hour:     append([]time.Time(nil), s.Hour...),
		Day:      append([]time.Time(nil), s.Day...),
		LastSeen: s.LastSeen,
	}
	if s.BlockedUntil != nil {
		until := *s.BlockedUntil
		c.BlockedUntil = &until
	}
	return c
}

// ClientStatus representa o estado observável de um cliente
type ClientStatus struct {
	ClientID     string       `json:"clientId"`
	Burst        int          `json:"burst"`
	Counts       WindowCounts `json:"counts"`
	Limits       WindowCounts `json:"limits"`
	BlockedUntil *time.Time   `json:"blockedUntil,omitempty"`
	IsBlocked    bool         `json:"isBlocked"`
	LastSeen     time.Time    `json:"lastSeen"`
}

// RateLimitConfig representa os limites por janela
type RateLimitConfig struct {
	RequestsPerMinute  int `json:"requestsPerMinute" yaml:"requests_per_minute"`
	RequestsPerHour    int `json:"requestsPerHour" yaml:"requests_per_hour"`
	RequestsPerDay     int `json:"requestsPerDay" yaml:"requests_per_day"`
	BurstLimit         int `json:"burstLimit" yaml:"burst_limit"`
	BurstWindowSeconds int `json:"burstWindowSeconds" yaml:"-"`
	BlockDuration      int `json:"blockDuration" yaml:"block_duration"` // segundos
}

// DefaultRateLimitConfig retorna os limites padrão
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute:  60,
		RequestsPerHour:    1000,
		RequestsPerDay:     10000,
		BurstLimit:         10,
		BurstWindowSeconds: int(BurstWindow / time.Second),
		BlockDuration:      300,
	}
}

// SecurityConfig representa as regras de validação e de acesso
type SecurityConfig struct {
	MaxRequestSize              int64    `json:"maxRequestSize"`
	BlockedUserAgents           []string `json:"blockedUserAgents"`
	BlockedIPs                  []string `json:"blockedIps"`
	AllowedOrigins              []string `json:"allowedOrigins"`
	EnableCSRFProtection        bool     `json:"enableCsrfProtection"`
	EnableXSSProtection         bool     `json:"enableXssProtection"`
	EnableContentTypeValidation bool     `json:"enableContentTypeValidation"`
	CSRFTokenTTL                int      `json:"csrfTokenTtl"` // segundos
}

// DefaultSecurityConfig retorna a configuração de segurança padrão
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxRequestSize:              10 * 1024 * 1024,
		BlockedUserAgents:           []string{},
		BlockedIPs:                  []string{},
		AllowedOrigins:              []string{},
		EnableCSRFProtection:        true,
		EnableXSSProtection:         true,
		EnableContentTypeValidation: true,
		CSRFTokenTTL:                3600,
	}
}

// SecurityEvent é o registro de uma requisição rejeitada
type SecurityEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
	ClientIP  string    `json:"clientIp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Issues    []Issue   `json:"issues,omitempty"`
}
