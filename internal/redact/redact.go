// Package redact strips sensitive data from text before it reaches
// logs or exports. Matching substrings are replaced with typed
// placeholders like [PASSWORD_REDACTED]; everything else, including
// whitespace, is preserved verbatim.
//
// Pattern order matters. Higher-specificity patterns (JWT, credentialed
// URLs) run before lower-specificity ones (generic secrets) so a greedy
// pattern cannot swallow a more specific match. The pattern set is
// fixed at init and read-only afterwards.
//
// Redaction is on the hot path of every log line in the orchestration
// loop, and log lines repeat, so results are cached per exact input in
// a bounded LRU.
package redact

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
)

// Pattern couples a compiled expression with its replacement
// placeholder. Placeholders never contain the matched text.
type Pattern struct {
	Name        string
	Placeholder string
	re          *regexp.Regexp
}

// patterns is the ordered, process-wide pattern set.
var patterns = []Pattern{
	// URLs carrying userinfo must go before anything that could match
	// inside them.
	{"credentialed_url", "[URL_REDACTED]",
		regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^/\s:@]+:[^@\s]+@\S+`)},

	{"basic_auth", "[BASIC_AUTH_REDACTED]",
		regexp.MustCompile(`(?i)authorization:\s*basic\s+[A-Za-z0-9+/=]+`)},

	// Bearer before bare JWT: "Bearer eyJ…" should collapse to one
	// placeholder, not leave a dangling "Bearer " prefix.
	{"bearer_token", "[BEARER_REDACTED]",
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)},

	{"jwt", "[JWT_REDACTED]",
		regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]+\b`)},

	{"api_key_assignment", "[API_KEY_REDACTED]",
		regexp.MustCompile(`(?i)\b(?:api[_-]?key|x-api-key)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{8,}["']?`)},

	{"openai_style_key", "[API_KEY_REDACTED]",
		regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}\b`)},

	{"password_assignment", "[PASSWORD_REDACTED]",
		regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)["']?\s*[:=]\s*["']?[^\s"',;]+`)},

	// Generic secret/token assignments, after every specific form.
	{"generic_secret", "[SECRET_REDACTED]",
		regexp.MustCompile(`(?i)\b(?:secret|token|credential)s?["']?\s*[:=]\s*["']?[^\s"',;]+`)},

	{"cvv", "[CVV_REDACTED]",
		regexp.MustCompile(`(?i)\bcvv2?["']?\s*[:=]\s*["']?\d{3,4}\b`)},

	{"payment_card", "[CARD_REDACTED]",
		regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{1,4}\b`)},

	{"ssn", "[SSN_REDACTED]",
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},

	{"email", "[EMAIL_REDACTED]",
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},

	{"private_ipv4", "[PRIVATE_IP_REDACTED]",
		regexp.MustCompile(`\b(?:10\.\d{1,3}\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3}|172\.(?:1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3})\b`)},
}

// Patterns returns the names of the active patterns in match order.
func Patterns() []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	return names
}

// DefaultCacheSize bounds the default engine's result cache.
const DefaultCacheSize = 1000

// Engine applies the pattern set with a bounded LRU result cache.
// Safe for concurrent use from many conversations.
type Engine struct {
	mu    sync.Mutex
	size  int
	items map[string]*list.Element
	order *list.List // front = most recent
}

type cacheEntry struct {
	key    string
	result string
}

// NewEngine creates an engine whose cache holds at most size entries.
// Sizes below 1 disable caching.
func NewEngine(size int) *Engine {
	return &Engine{
		size:  size,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// defaultEngine serves the package-level helpers. One process-wide
// cache is the point: repeated log lines recur across sessions.
var defaultEngine = NewEngine(DefaultCacheSize)

// Filter replaces every sensitive substring in s with its placeholder,
// using the process-wide engine.
func Filter(s string) string { return defaultEngine.Filter(s) }

// ContainsSensitive reports whether s matches any sensitive pattern,
// without performing substitution.
func ContainsSensitive(s string) bool { return defaultEngine.ContainsSensitive(s) }

// ResetCache clears the process-wide engine's cache. Intended for tests.
func ResetCache() {
	defaultEngine.mu.Lock()
	defer defaultEngine.mu.Unlock()
	defaultEngine.items = make(map[string]*list.Element)
	defaultEngine.order.Init()
}

// Filter replaces every sensitive substring in s with its placeholder.
func (e *Engine) Filter(s string) string {
	if s == "" {
		return s
	}
	if cached, ok := e.lookup(s); ok {
		return cached
	}

	out := s
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, p.Placeholder)
	}

	e.store(s, out)
	return out
}

// ContainsSensitive reports whether s matches any sensitive pattern.
func (e *Engine) ContainsSensitive(s string) bool {
	for _, p := range patterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

func (e *Engine) lookup(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.items[key]
	if !ok {
		return "", false
	}
	e.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (e *Engine) store(key, result string) {
	if e.size < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if el, ok := e.items[key]; ok {
		e.order.MoveToFront(el)
		el.Value.(*cacheEntry).result = result
		return
	}
	e.items[key] = e.order.PushFront(&cacheEntry{key: key, result: result})

	for len(e.items) > e.size {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.items, oldest.Value.(*cacheEntry).key)
	}
}

// MaskSecret reveals only the last keepLast characters of s, replacing
// the rest with asterisks. Strings no longer than keepLast are fully
// masked rather than revealed.
func MaskSecret(s string, keepLast int) string {
	if keepLast < 0 {
		keepLast = 0
	}
	runes := []rune(s)
	if len(runes) <= keepLast {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keepLast) + string(runes[len(runes)-keepLast:])
}
