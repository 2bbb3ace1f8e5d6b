package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"security-gate/internal/domain"
)

const shardCount = 64

// shard agrupa clientes que compartilham o mesmo lock
type shard struct {
	mutex   sync.Mutex
	clients map[string]*domain.ClientWindowState
}

// MemoryStorage implementa domain.ClientWindowStore em memória, com locks
// distribuídos por shard para evitar contenção global
type MemoryStorage struct {
	shards      [shardCount]*shard
	idleTimeout time.Duration
	now         func() time.Time
	logger      domain.Logger
	stop        chan struct{}
	closeOnce   sync.Once
}

// NewMemoryStorage cria uma nova instância do MemoryStorage
func NewMemoryStorage(logger domain.Logger) *MemoryStorage {
	storage := newMemoryStorage(logger, domain.DayWindow, time.Now)

	go storage.cleanup(time.Minute)

	if logger != nil {
		logger.Info("Memory storage initialized", map[string]interface{}{
			"shards": shardCount,
		})
	}

	return storage
}

func newMemoryStorage(logger domain.Logger, idleTimeout time.Duration, now func() time.Time) *MemoryStorage {
	storage := &MemoryStorage{
		idleTimeout: idleTimeout,
		now:         now,
		logger:      logger,
		stop:        make(chan struct{}),
	}
	for i := range storage.shards {
		storage.shards[i] = &shard{clients: make(map[string]*domain.ClientWindowState)}
	}
	return storage
}

func (m *MemoryStorage) shardFor(clientID string) *shard {
	return m.shards[xxhash.Sum64String(clientID)%shardCount]
}

// Update executa fn com o lock do shard do cliente
func (m *MemoryStorage) Update(clientID string, fn func(state *domain.ClientWindowState)) {
	s := m.shardFor(clientID)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, exists := s.clients[clientID]
	if !exists {
		state = &domain.ClientWindowState{}
		s.clients[clientID] = state
	}

	fn(state)
}

// Snapshot retorna uma cópia do estado do cliente
func (m *MemoryStorage) Snapshot(clientID string) (*domain.ClientWindowState, bool) {
	s := m.shardFor(clientID)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, exists := s.clients[clientID]
	if !exists {
		return nil, false
	}
	return state.Clone(), true
}

// Reset remove o estado de um cliente
func (m *MemoryStorage) Reset(clientID string) bool {
	s := m.shardFor(clientID)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.clients[clientID]
	delete(s.clients, clientID)
	return exists
}

// Len retorna a quantidade de clientes rastreados
func (m *MemoryStorage) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mutex.Lock()
		total += len(s.clients)
		s.mutex.Unlock()
	}
	return total
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	if m.logger != nil {
		m.logger.Debug("Memory storage health check", map[string]interface{}{
			"clients": m.Len(),
		})
	}
	return ctx.Err()
}

// Close para a limpeza periódica e descarta todos os dados
func (m *MemoryStorage) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)

		for _, s := range m.shards {
			s.mutex.Lock()
			s.clients = make(map[string]*domain.ClientWindowState)
			s.mutex.Unlock()
		}

		if m.logger != nil {
			m.logger.Info("Memory storage closed", nil)
		}
	})
	return nil
}

// GetStats retorna estatísticas do storage em memória
func (m *MemoryStorage) GetStats() map[string]interface{} {
	blocked := 0
	total := 0
	now := m.now()

	for _, s := range m.shards {
		s.mutex.Lock()
		total += len(s.clients)
		for _, state := range s.clients {
			if state.BlockedUntil != nil && state.BlockedUntil.After(now) {
				blocked++
			}
		}
		s.mutex.Unlock()
	}

	return map[string]interface{}{
		"clients":         total,
		"blocked_clients": blocked,
		"shards":          shardCount,
		"type":            "memory",
	}
}

// cleanup remove clientes inativos periodicamente
func (m *MemoryStorage) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdleClients()
		case <-m.stop:
			return
		}
	}
}

// cleanupIdleClients remove clientes sem requisições dentro do maior
// horizonte e sem bloqueio ativo
func (m *MemoryStorage) cleanupIdleClients() int {
	now := m.now()
	removed := 0

	for _, s := range m.shards {
		s.mutex.Lock()
		for clientID, state := range s.clients {
			if state.BlockedUntil != nil && state.BlockedUntil.After(now) {
				continue
			}
			if now.Sub(state.LastSeen) > m.idleTimeout {
				delete(s.clients, clientID)
				removed++
			}
		}
		s.mutex.Unlock()
	}

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory storage cleanup completed", map[string]interface{}{
			"removed_clients": removed,
		})
	}

	return removed
}
