package service

import "regexp"

// Padrões heurísticos: há falsos positivos e falsos negativos conhecidos
var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion(\s+all)?\s+select\b`),
		regexp.MustCompile(`(?i)\bselect\b.+\bfrom\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b`),
		regexp.MustCompile(`(?i)\bupdate\b.+\bset\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\b`),
		regexp.MustCompile(`(?i)\b(drop|create|alter)\s+(table|database|schema|view|index)\b`),
		regexp.MustCompile(`(?i)\bexec(ute)?(\s+(xp|sp)_\w+|\s*\()`),
		regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`),
		regexp.MustCompile(`(?i)('|%27)\s*(\bor\b|\band\b|--|#|;|/\*)`),
		regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|shutdown|truncate)\b`),
		regexp.MustCompile(`/\*.*?\*/`),
		regexp.MustCompile(`\x00|\x1a|%00`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe\s*>`),
		regexp.MustCompile(`(?is)<object[^>]*>.*?</object\s*>`),
	}

	pathTraversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\.|%2e){2}(/|\\|%2f|%5c)`),
		regexp.MustCompile(`(?i)(/|\\|%2f|%5c)(\.|%2e){2}$`),
	}
)

// PatternScreener procura indícios de ataque em texto. Não guarda estado
// mutável e pode ser usado concorrentemente.
type PatternScreener struct {
	sqlPatterns       []*regexp.Regexp
	xssPatterns       []*regexp.Regexp
	traversalPatterns []*regexp.Regexp
}

// NewPatternScreener cria o screener com os padrões pré-compilados
func NewPatternScreener() *PatternScreener {
	return &PatternScreener{
		sqlPatterns:       sqlInjectionPatterns,
		xssPatterns:       xssPatterns,
		traversalPatterns: pathTraversalPatterns,
	}
}

// ScanSQLi detecta indícios de SQL injection
func (p *PatternScreener) ScanSQLi(text string) bool {
	return matchAny(p.sqlPatterns, text)
}

// ScanXSS detecta indícios de cross-site scripting
func (p *PatternScreener) ScanXSS(text string) bool {
	return matchAny(p.xssPatterns, text)
}

// ScanTraversal detecta sequências de path traversal, literais ou codificadas
func (p *PatternScreener) ScanTraversal(text string) bool {
	return matchAny(p.traversalPatterns, text)
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
