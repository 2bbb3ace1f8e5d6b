package service

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"security-gate/internal/domain"
)

// Marcadores procurados nos bytes crus do corpo
var maliciousUploadMarkers = [][]byte{
	[]byte("<?php"),
	[]byte("<script"),
}

// Tipos aceitos em corpos de requisições que alteram estado
var allowedContentTypes = map[string]struct{}{
	"application/json":                  {},
	"application/x-www-form-urlencoded": {},
	"multipart/form-data":               {},
	"text/plain":                        {},
	"application/xml":                   {},
	"text/xml":                          {},
}

// ContentValidator julga se URL, query e corpo são admissíveis
type ContentValidator struct {
	screener      domain.PatternScreener
	config        domain.SecurityConfig
	blockedAgents []string
}

// NewContentValidator cria o validador; os user agents bloqueados são
// normalizados para minúsculas uma única vez
func NewContentValidator(screener domain.PatternScreener, config domain.SecurityConfig) *ContentValidator {
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = domain.DefaultSecurityConfig().MaxRequestSize
	}

	agents := make([]string, 0, len(config.BlockedUserAgents))
	for _, agent := range config.BlockedUserAgents {
		agent = strings.ToLower(strings.TrimSpace(agent))
		if agent != "" {
			agents = append(agents, agent)
		}
	}

	return &ContentValidator{
		screener:      screener,
		config:        config,
		blockedAgents: agents,
	}
}

// ValidateRequestLine verifica tamanho declarado, user agent e padrões
// de ataque em path + query
func (v *ContentValidator) ValidateRequestLine(urlPath, queryString string, headers http.Header) domain.ValidationResult {
	issues := make([]domain.Issue, 0)

	if raw := headers.Get("Content-Length"); raw != "" {
		if size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && size > v.config.MaxRequestSize {
			issues = append(issues, domain.Issue{
				Kind:    domain.IssueRequestTooLarge,
				Message: "Request size exceeds maximum allowed",
			})
		}
	}

	if userAgent := strings.ToLower(headers.Get("User-Agent")); userAgent != "" {
		for _, blocked := range v.blockedAgents {
			if strings.Contains(userAgent, blocked) {
				issues = append(issues, domain.Issue{
					Kind:    domain.IssueBlockedUserAgent,
					Message: "User agent is not allowed",
				})
				break
			}
		}
	}

	target := urlPath
	if queryString != "" {
		target += "?" + queryString
	}

	issues = append(issues, v.scan(target, "URL", true)...)

	return domain.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// ValidateBody verifica o corpo decodificado e os bytes crus
func (v *ContentValidator) ValidateBody(raw []byte) domain.ValidationResult {
	issues := make([]domain.Issue, 0)

	if len(raw) == 0 {
		return domain.ValidationResult{Valid: true, Issues: issues}
	}

	if int64(len(raw)) > v.config.MaxRequestSize {
		issues = append(issues, domain.Issue{
			Kind:    domain.IssueRequestTooLarge,
			Message: "Request body exceeds maximum allowed size",
		})
	}

	issues = append(issues, v.scan(decodeLenient(raw), "request body", false)...)

	for _, marker := range maliciousUploadMarkers {
		if bytes.Contains(raw, marker) {
			issues = append(issues, domain.Issue{
				Kind:    domain.IssueMaliciousUpload,
				Message: "Potentially malicious content detected in upload",
			})
			break
		}
	}

	return domain.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// ValidateContentType verifica o media type declarado de um corpo
func (v *ContentValidator) ValidateContentType(contentType string) domain.ValidationResult {
	if !v.config.EnableContentTypeValidation {
		return domain.ValidationResult{Valid: true, Issues: []domain.Issue{}}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if _, ok := allowedContentTypes[strings.ToLower(mediaType)]; ok {
			return domain.ValidationResult{Valid: true, Issues: []domain.Issue{}}
		}
	}

	return domain.ValidationResult{
		Valid: false,
		Issues: []domain.Issue{{
			Kind:    domain.IssueUnsupportedContentType,
			Message: "Unsupported content type",
		}},
	}
}

// scan aplica cada grupo de padrões; cada grupo gera no máximo um issue
func (v *ContentValidator) scan(text, location string, withTraversal bool) []domain.Issue {
	var issues []domain.Issue

	if v.screener.ScanSQLi(text) {
		issues = append(issues, domain.Issue{
			Kind:    domain.IssueSQLInjection,
			Message: "Potential SQL injection detected in " + location,
		})
	}

	if v.config.EnableXSSProtection && v.screener.ScanXSS(text) {
		issues = append(issues, domain.Issue{
			Kind:    domain.IssueXSS,
			Message: "Potential XSS attack detected in " + location,
		})
	}

	if withTraversal && v.screener.ScanTraversal(text) {
		issues = append(issues, domain.Issue{
			Kind:    domain.IssuePathTraversal,
			Message: "Path traversal attempt detected in " + location,
		})
	}

	return issues
}

// decodeLenient decodifica UTF-8 substituindo bytes inválidos por U+FFFD
func decodeLenient(raw []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(decoded)
}
