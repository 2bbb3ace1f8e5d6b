package service

import (
	"math"
	"time"

	"security-gate/internal/domain"
)

// Motivos reportados quando uma janela é excedida
const (
	ReasonPerMinute = "per minute"
	ReasonPerHour   = "per hour"
	ReasonPerDay    = "per day"
)

// RateLimiterService implementa as janelas deslizantes por cliente.
// A lógica fica separada do middleware e do storage.
type RateLimiterService struct {
	store  domain.ClientWindowStore
	config domain.RateLimitConfig
	logger domain.Logger
}

// NewRateLimiterService cria uma nova instância do serviço
func NewRateLimiterService(
	store domain.ClientWindowStore,
	config domain.RateLimitConfig,
	logger domain.Logger,
) *RateLimiterService {
	if config.BlockDuration <= 0 {
		config.BlockDuration = domain.DefaultRateLimitConfig().BlockDuration
	}
	config.BurstWindowSeconds = int(domain.BurstWindow / time.Second)

	return &RateLimiterService{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Config retorna os limites em uso
func (s *RateLimiterService) Config() domain.RateLimitConfig {
	return s.config
}

// Evaluate registra a requisição nas janelas do cliente e decide.
// A ordem das verificações define qual violação é reportada.
func (s *RateLimiterService) Evaluate(clientID string, now time.Time) domain.Verdict {
	var verdict domain.Verdict

	s.store.Update(clientID, func(state *domain.ClientWindowState) {
		verdict = s.evaluate(state, now)
	})

	if s.logger != nil && !verdict.Allowed() {
		s.logger.Info("Rate limit verdict", map[string]interface{}{
			"client_id":   clientID,
			"verdict":     verdict.Kind,
			"reason":      verdict.Reason,
			"retry_after": verdict.RetryAfter,
		})
	}

	return verdict
}

func (s *RateLimiterService) evaluate(state *domain.ClientWindowState, now time.Time) domain.Verdict {
	state.LastSeen = now

	if state.BlockedUntil != nil {
		if state.BlockedUntil.After(now) {
			return domain.Verdict{
				Kind:       domain.VerdictBlocked,
				Reason:     "temporarily blocked",
				RetryAfter: ceilSeconds(state.BlockedUntil.Sub(now)),
			}
		}
		state.BlockedUntil = nil
	}

	state.Burst = prune(state.Burst, now, domain.BurstWindow)
	state.Minute = prune(state.Minute, now, domain.MinuteWindow)
	state.Hour = prune(state.Hour, now, domain.HourWindow)
	state.Day = prune(state.Day, now, domain.DayWindow)

	state.Burst = prune(append(state.Burst, now), now, domain.BurstWindow)
	if len(state.Burst) > s.config.BurstLimit {
		until := now.Add(time.Duration(s.config.BlockDuration) * time.Second)
		state.BlockedUntil = &until

		return domain.Verdict{
			Kind:       domain.VerdictBlocked,
			Reason:     "burst limit exceeded",
			RetryAfter: s.config.BlockDuration,
		}
	}

	// Contagens anteriores à inserção: exatamente `limit` requisições passam
	// por janela e a (limit+1)-ésima é a primeira rejeitada
	m, h, d := len(state.Minute), len(state.Hour), len(state.Day)

	// A tentativa conta na janela mesmo quando rejeitada
	state.Minute = append(state.Minute, now)
	state.Hour = append(state.Hour, now)
	state.Day = append(state.Day, now)

	counts := domain.WindowCounts{Minute: m + 1, Hour: h + 1, Day: d + 1}

	switch {
	case m >= s.config.RequestsPerMinute:
		return rateLimited(ReasonPerMinute, domain.MinuteWindow, counts)
	case h >= s.config.RequestsPerHour:
		return rateLimited(ReasonPerHour, domain.HourWindow, counts)
	case d >= s.config.RequestsPerDay:
		return rateLimited(ReasonPerDay, domain.DayWindow, counts)
	}

	return domain.Verdict{Kind: domain.VerdictAllowed, Counts: counts}
}

// Status retorna o estado atual do cliente sem registrar requisição
func (s *RateLimiterService) Status(clientID string, now time.Time) (*domain.ClientStatus, bool) {
	state, ok := s.store.Snapshot(clientID)
	if !ok {
		return nil, false
	}

	status := &domain.ClientStatus{
		ClientID: clientID,
		Burst:    len(prune(state.Burst, now, domain.BurstWindow)),
		Counts: domain.WindowCounts{
			Minute: len(prune(state.Minute, now, domain.MinuteWindow)),
			Hour:   len(prune(state.Hour, now, domain.HourWindow)),
			Day:    len(prune(state.Day, now, domain.DayWindow)),
		},
		Limits: domain.WindowCounts{
			Minute: s.config.RequestsPerMinute,
			Hour:   s.config.RequestsPerHour,
			Day:    s.config.RequestsPerDay,
		},
		LastSeen: state.LastSeen,
	}

	if state.BlockedUntil != nil && state.BlockedUntil.After(now) {
		status.BlockedUntil = state.BlockedUntil
		status.IsBlocked = true
	}

	return status, true
}

// Reset limpa janelas e bloqueio do cliente
func (s *RateLimiterService) Reset(clientID string) bool {
	existed := s.store.Reset(clientID)

	if s.logger != nil {
		s.logger.Info("Rate limit reset", map[string]interface{}{
			"client_id": clientID,
			"existed":   existed,
		})
	}

	return existed
}

func rateLimited(reason string, window time.Duration, counts domain.WindowCounts) domain.Verdict {
	return domain.Verdict{
		Kind:       domain.VerdictRateLimited,
		Reason:     reason,
		RetryAfter: int(window / time.Second),
		Counts:     counts,
	}
}

// prune descarta do início os timestamps anteriores ao horizonte
func prune(timestamps []time.Time, now time.Time, horizon time.Duration) []time.Time {
	cutoff := now.Add(-horizon)

	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}

	if i == len(timestamps) {
		return nil
	}
	return timestamps[i:]
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
