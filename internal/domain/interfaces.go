package domain

import (
	"context"
	"net/http"
	"time"
)

// ClientWindowStore define o armazenamento do estado das janelas por cliente.
// Operações sobre o mesmo cliente são serializadas pela implementação.
type ClientWindowStore interface {
	// Update executa fn com acesso exclusivo ao estado do cliente, criando-o se necessário
	Update(clientID string, fn func(state *ClientWindowState))

	// Snapshot retorna uma cópia do estado do cliente
	Snapshot(clientID string) (*ClientWindowState, bool)

	// Reset remove o estado do cliente
	Reset(clientID string) bool

	// Len retorna a quantidade de clientes rastreados
	Len() int

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close libera os recursos do storage
	Close() error
}

// RateLimiter avalia requisições contra as janelas deslizantes
type RateLimiter interface {
	// Evaluate registra a requisição e retorna o veredito
	Evaluate(clientID string, now time.Time) Verdict

	// Status retorna o estado atual do cliente sem registrar requisição
	Status(clientID string, now time.Time) (*ClientStatus, bool)

	// Reset limpa janelas e bloqueio do cliente
	Reset(clientID string) bool
}

// PatternScreener detecta padrões de ataque em texto
type PatternScreener interface {
	ScanSQLi(text string) bool
	ScanXSS(text string) bool
	ScanTraversal(text string) bool
}

// ContentValidator decide se URL, query e corpo são admissíveis
type ContentValidator interface {
	ValidateRequestLine(urlPath, queryString string, headers http.Header) ValidationResult
	ValidateBody(raw []byte) ValidationResult
	ValidateContentType(contentType string) ValidationResult
}

// CSRFProtector emite e verifica tokens CSRF sem estado
type CSRFProtector interface {
	Issue(sessionID string, now time.Time) string
	Verify(token, sessionID string, now time.Time) bool
}

// EventSink persiste eventos de segurança
type EventSink interface {
	Record(ctx context.Context, event SecurityEvent) error
	Recent(ctx context.Context, limit int) ([]SecurityEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// MetricsRecorder recebe as observações do gate
type MetricsRecorder interface {
	ObserveRequest(outcome string, status int, duration time.Duration)
	ObserveIssue(kind IssueKind)
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}
