package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"security-gate/internal/domain"
)

// DefaultEventCapacity é a quantidade padrão de eventos retidos
const DefaultEventCapacity = 1000

// MemoryEventSink guarda os eventos mais recentes num buffer circular
type MemoryEventSink struct {
	mutex  sync.RWMutex
	events []domain.SecurityEvent
	next   int
	full   bool
}

// NewMemoryEventSink cria um sink em memória com a capacidade informada
func NewMemoryEventSink(capacity int) *MemoryEventSink {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &MemoryEventSink{
		events: make([]domain.SecurityEvent, capacity),
	}
}

// Record grava o evento sobrescrevendo o mais antigo quando cheio
func (m *MemoryEventSink) Record(ctx context.Context, event domain.SecurityEvent) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.events[m.next] = event
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent retorna até limit eventos, do mais recente para o mais antigo
func (m *MemoryEventSink) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	size := m.next
	if m.full {
		size = len(m.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]domain.SecurityEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.events)) % len(m.events)
		result = append(result, m.events[idx])
	}
	return result, nil
}

// Health sempre saudável para memória
func (m *MemoryEventSink) Health(ctx context.Context) error {
	return nil
}

// Close descarta os eventos
func (m *MemoryEventSink) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.events = make([]domain.SecurityEvent, len(m.events))
	m.next = 0
	m.full = false
	return nil
}

// NoopEventSink descarta todos os eventos
type NoopEventSink struct{}

func (NoopEventSink) Record(ctx context.Context, event domain.SecurityEvent) error { return nil }

func (NoopEventSink) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	return []domain.SecurityEvent{}, nil
}

func (NoopEventSink) Health(ctx context.Context) error { return nil }

func (NoopEventSink) Close() error { return nil }

// AsyncEventSink enfileira eventos num canal drenado por uma goroutine,
// mantendo o gate livre de I/O. Com a fila cheia o evento é descartado.
type AsyncEventSink struct {
	inner   domain.EventSink
	queue   chan domain.SecurityEvent
	done    chan struct{}
	logger  domain.Logger
	dropped atomic.Int64
	mutex   sync.RWMutex
	closed  bool
}

// NewAsyncEventSink inicia o worker que drena a fila para inner
func NewAsyncEventSink(inner domain.EventSink, buffer int, logger domain.Logger) *AsyncEventSink {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncEventSink{
		inner:  inner,
		queue:  make(chan domain.SecurityEvent, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

func (a *AsyncEventSink) run() {
	defer close(a.done)

	for event := range a.queue {
		if err := a.inner.Record(context.Background(), event); err != nil && a.logger != nil {
			a.logger.Error("Failed to record security event", err, map[string]interface{}{
				"event_id": event.ID,
			})
		}
	}
}

// Record enfileira sem bloquear
func (a *AsyncEventSink) Record(ctx context.Context, event domain.SecurityEvent) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.closed {
		return domain.ErrSinkUnavailable
	}

	select {
	case a.queue <- event:
		return nil
	default:
		dropped := a.dropped.Add(1)
		if a.logger != nil {
			a.logger.Warn("Security event queue full, dropping event", map[string]interface{}{
				"event_id": event.ID,
				"dropped":  dropped,
			})
		}
		return nil
	}
}

// Recent delega para o sink interno
func (a *AsyncEventSink) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	return a.inner.Recent(ctx, limit)
}

// Health delega para o sink interno
func (a *AsyncEventSink) Health(ctx context.Context) error {
	return a.inner.Health(ctx)
}

// Dropped retorna quantos eventos foram descartados por fila cheia
func (a *AsyncEventSink) Dropped() int64 {
	return a.dropped.Load()
}

// Close drena a fila e fecha o sink interno
func (a *AsyncEventSink) Close() error {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mutex.Unlock()

	<-a.done
	return a.inner.Close()
}
