package storage

import (
	"fmt"
	"strings"

	"security-gate/internal/domain"
)

// SinkType define os tipos de sink de eventos disponíveis
type SinkType string

const (
	RedisSinkType  SinkType = "redis"
	MemorySinkType SinkType = "memory"
	NoopSinkType   SinkType = "none"
)

// EventSinkConfig contém configurações para criação do sink de eventos
type EventSinkConfig struct {
	Type        SinkType
	Capacity    int
	RedisConfig *RedisConfig
}

// RedisConfig contém configurações específicas do Redis
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	Database  int
	EventsKey string
}

// StorageFactory cria instâncias de storage seguindo Strategy Pattern
type StorageFactory struct{}

// NewStorageFactory cria uma nova instância da factory
func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

// CreateWindowStore cria o storage das janelas por cliente. Apenas memória
// é suportado: o estado de rate limit é local ao processo.
func (f *StorageFactory) CreateWindowStore(logger domain.Logger) domain.ClientWindowStore {
	return NewMemoryStorage(logger)
}

// CreateEventSink cria um sink de eventos baseado na configuração
func (f *StorageFactory) CreateEventSink(config *EventSinkConfig, logger domain.Logger) (domain.EventSink, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch SinkType(strings.ToLower(string(config.Type))) {
	case RedisSinkType:
		sink, err := NewRedisEventSink(config.RedisConfig, config.Capacity, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis event sink: %w", err)
		}
		return sink, nil
	case NoopSinkType:
		return NoopEventSink{}, nil
	default:
		if logger != nil {
			logger.Info("Memory event sink created", map[string]interface{}{
				"capacity": config.Capacity,
			})
		}
		return NewMemoryEventSink(config.Capacity), nil
	}
}

// GetSupportedTypes retorna os tipos de sink suportados
func (f *StorageFactory) GetSupportedTypes() []SinkType {
	return []SinkType{MemorySinkType, RedisSinkType, NoopSinkType}
}

// ValidateConfig valida uma configuração de sink
func (f *StorageFactory) ValidateConfig(config *EventSinkConfig) error {
	if config == nil {
		return fmt.Errorf("%w: event sink config cannot be nil", domain.ErrInvalidConfig)
	}

	switch SinkType(strings.ToLower(string(config.Type))) {
	case RedisSinkType:
		return f.validateRedisConfig(config.RedisConfig)
	case MemorySinkType, NoopSinkType:
		return nil
	default:
		return fmt.Errorf("%w: unsupported event sink type: %s", domain.ErrInvalidConfig, config.Type)
	}
}

// validateRedisConfig valida configuração do Redis
func (f *StorageFactory) validateRedisConfig(config *RedisConfig) error {
	if config == nil {
		return fmt.Errorf("%w: Redis config cannot be nil", domain.ErrInvalidConfig)
	}

	if config.Host == "" {
		return fmt.Errorf("%w: Redis host cannot be empty", domain.ErrInvalidConfig)
	}

	if config.Port == "" {
		return fmt.Errorf("%w: Redis port cannot be empty", domain.ErrInvalidConfig)
	}

	if config.Database < 0 || config.Database > 15 {
		return fmt.Errorf("%w: Redis database must be between 0 and 15, got: %d", domain.ErrInvalidConfig, config.Database)
	}

	return nil
}
