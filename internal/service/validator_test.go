package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-gate/internal/domain"
)

func newTestValidator(mutate func(config *domain.SecurityConfig)) *ContentValidator {
	config := domain.DefaultSecurityConfig()
	if mutate != nil {
		mutate(&config)
	}
	return NewContentValidator(NewPatternScreener(), config)
}

func issueKinds(issues []domain.Issue) []domain.IssueKind {
	kinds := make([]domain.IssueKind, 0, len(issues))
	for _, issue := range issues {
		kinds = append(kinds, issue.Kind)
	}
	return kinds
}

func browserHeaders() http.Header {
	headers := http.Header{}
	headers.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	return headers
}

func TestContentValidator_ValidateRequestLine(t *testing.T) {
	validator := newTestValidator(nil)

	tests := []struct {
		name     string
		path     string
		query    string
		expected domain.IssueKind
	}{
		{"sql injection na query", "/search", "id=1 OR 1=1", domain.IssueSQLInjection},
		{"xss no path", "/<script>alert(1)</script>", "", domain.IssueXSS},
		{"path traversal", "/../../etc/passwd", "", domain.IssuePathTraversal},
		{"traversal na query", "/download", "file=../secret", domain.IssuePathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.ValidateRequestLine(tt.path, tt.query, browserHeaders())

			assert.False(t, result.Valid)
			assert.Contains(t, issueKinds(result.Issues), tt.expected)
		})
	}
}

func TestContentValidator_CleanRequestLine(t *testing.T) {
	validator := newTestValidator(nil)

	result := validator.ValidateRequestLine("/api/v1/users", "page=2", browserHeaders())

	assert.True(t, result.Valid)
	assert.NotNil(t, result.Issues)
	assert.Empty(t, result.Issues)
}

func TestContentValidator_OneIssuePerGroup(t *testing.T) {
	validator := newTestValidator(nil)

	result := validator.ValidateRequestLine("/search", "a=1 OR 1=1&b=x' OR 'y'='y", browserHeaders())

	assert.Equal(t, []domain.IssueKind{domain.IssueSQLInjection}, issueKinds(result.Issues))
}

func TestContentValidator_ContentLength(t *testing.T) {
	validator := newTestValidator(func(config *domain.SecurityConfig) {
		config.MaxRequestSize = 100
	})

	headers := browserHeaders()
	headers.Set("Content-Length", "101")
	result := validator.ValidateRequestLine("/upload", "", headers)
	assert.Equal(t, []domain.IssueKind{domain.IssueRequestTooLarge}, issueKinds(result.Issues))

	headers.Set("Content-Length", "100")
	assert.True(t, validator.ValidateRequestLine("/upload", "", headers).Valid)

	// Valor não numérico é ignorado
	headers.Set("Content-Length", "abc")
	assert.True(t, validator.ValidateRequestLine("/upload", "", headers).Valid)
}

func TestContentValidator_BlockedUserAgent(t *testing.T) {
	validator := newTestValidator(func(config *domain.SecurityConfig) {
		config.BlockedUserAgents = []string{"sqlmap", " Nikto ", ""}
	})

	tests := []struct {
		name      string
		userAgent string
		valid     bool
	}{
		{"substring", "sqlmap/1.7.2#stable (https://sqlmap.org)", false},
		{"case insensitive", "Mozilla/5.00 (NIKTO/2.1.6)", false},
		{"navegador", "Mozilla/5.0 (Macintosh)", true},
		{"vazio", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.userAgent != "" {
				headers.Set("User-Agent", tt.userAgent)
			}

			result := validator.ValidateRequestLine("/", "", headers)

			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.Equal(t, []domain.IssueKind{domain.IssueBlockedUserAgent}, issueKinds(result.Issues))
			}
		})
	}
}

func TestContentValidator_XSSProtectionDisabled(t *testing.T) {
	validator := newTestValidator(func(config *domain.SecurityConfig) {
		config.EnableXSSProtection = false
	})

	assert.True(t, validator.ValidateRequestLine("/<script>alert(1)</script>", "", browserHeaders()).Valid)
	assert.True(t, validator.ValidateBody([]byte(`{"html":"<iframe src=x></iframe>"}`)).Valid)
}

func TestContentValidator_ValidateBody(t *testing.T) {
	validator := newTestValidator(nil)

	tests := []struct {
		name     string
		body     []byte
		expected []domain.IssueKind
	}{
		{"vazio", nil, []domain.IssueKind{}},
		{"json comum", []byte(`{"name":"Alice","age":30}`), []domain.IssueKind{}},
		{"sql injection", []byte(`{"q":"1 UNION SELECT card FROM payments"}`), []domain.IssueKind{domain.IssueSQLInjection}},
		{"xss via atributo", []byte(`{"bio":"<img src=x onerror=alert(1)>"}`), []domain.IssueKind{domain.IssueXSS}},
		{"traversal ignorado no corpo", []byte(`{"path":"../../etc/passwd"}`), []domain.IssueKind{}},
		{"upload php", []byte("GIF89a<?php system($_GET['c']); ?>"), []domain.IssueKind{domain.IssueMaliciousUpload}},
		{"script sem fechamento", []byte("<script src=//evil.js>"), []domain.IssueKind{domain.IssueMaliciousUpload}},
		{"script completo", []byte("<script>alert(1)</script>"), []domain.IssueKind{domain.IssueXSS, domain.IssueMaliciousUpload}},
		{"marcador maiúsculo", []byte("<?PHP echo 1; ?>"), []domain.IssueKind{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.ValidateBody(tt.body)

			assert.Equal(t, tt.expected, issueKinds(result.Issues))
			assert.Equal(t, len(tt.expected) == 0, result.Valid)
		})
	}
}

func TestContentValidator_BodyTooLarge(t *testing.T) {
	validator := newTestValidator(func(config *domain.SecurityConfig) {
		config.MaxRequestSize = 8
	})

	result := validator.ValidateBody([]byte("123456789"))

	assert.False(t, result.Valid)
	assert.Equal(t, []domain.IssueKind{domain.IssueRequestTooLarge}, issueKinds(result.Issues))
	assert.True(t, validator.ValidateBody([]byte("12345678")).Valid)
}

func TestContentValidator_InvalidUTF8Body(t *testing.T) {
	validator := newTestValidator(nil)

	// Bytes inválidos não geram erro e não escondem o restante do conteúdo
	body := append([]byte{0xff, 0xfe}, []byte(" union select * from users")...)
	result := validator.ValidateBody(body)

	require.False(t, result.Valid)
	assert.Equal(t, []domain.IssueKind{domain.IssueSQLInjection}, issueKinds(result.Issues))

	assert.True(t, validator.ValidateBody([]byte{0xc3, 0x28, 'o', 'k'}).Valid)
}

func TestContentValidator_ValidateContentType(t *testing.T) {
	validator := newTestValidator(nil)

	tests := []struct {
		contentType string
		valid       bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"multipart/form-data; boundary=xyz", true},
		{"application/x-www-form-urlencoded", true},
		{"text/plain", true},
		{"application/octet-stream", false},
		{"", false},
		{"not a media type;;", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			result := validator.ValidateContentType(tt.contentType)

			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.Equal(t, []domain.IssueKind{domain.IssueUnsupportedContentType}, issueKinds(result.Issues))
			}
		})
	}

	disabled := newTestValidator(func(config *domain.SecurityConfig) {
		config.EnableContentTypeValidation = false
	})
	assert.True(t, disabled.ValidateContentType("application/octet-stream").Valid)
}

func TestDecodeLenient(t *testing.T) {
	assert.Equal(t, "olá", decodeLenient([]byte("olá")))
	assert.Equal(t, "a\uFFFDb", decodeLenient([]byte{'a', 0xff, 'b'}))
}
