package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"security-gate/internal/domain"
)

// DefaultCSRFTokenTTL é a validade padrão de um token
const DefaultCSRFTokenTTL = time.Hour

// CSRFService emite e verifica tokens no formato "timestamp:hexdigest".
// Nada é armazenado: a validade é recalculada na verificação.
type CSRFService struct {
	secret string
	ttl    time.Duration
	logger domain.Logger
}

// NewCSRFService cria o serviço com o segredo e a validade informados
func NewCSRFService(secret string, ttl time.Duration, logger domain.Logger) *CSRFService {
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRFService{
		secret: secret,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL retorna a validade dos tokens
func (s *CSRFService) TTL() time.Duration {
	return s.ttl
}

// Issue gera um token para a sessão no instante informado
func (s *CSRFService) Issue(sessionID string, now time.Time) string {
	timestamp := now.Unix()
	return strconv.FormatInt(timestamp, 10) + ":" + s.digest(sessionID, timestamp)
}

// Verify confere o token para a sessão; qualquer token malformado é inválido
func (s *CSRFService) Verify(token, sessionID string, now time.Time) bool {
	rawTimestamp, digest, found := strings.Cut(token, ":")
	if !found {
		s.debug("CSRF token malformed", nil)
		return false
	}

	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		s.debug("CSRF token timestamp invalid", map[string]interface{}{"error": err.Error()})
		return false
	}

	if now.Unix()-timestamp > int64(s.ttl/time.Second) {
		s.debug("CSRF token expired", map[string]interface{}{"issued_at": timestamp})
		return false
	}

	expected := s.digest(sessionID, timestamp)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) == 1
}

func (s *CSRFService) digest(sessionID string, timestamp int64) string {
	sum := sha256.Sum256([]byte(sessionID + ":" + strconv.FormatInt(timestamp, 10) + ":" + s.secret))
	return hex.EncodeToString(sum[:])
}

func (s *CSRFService) debug(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, fields)
	}
}
