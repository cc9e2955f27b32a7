package envelope

import (
	"net/http"
	"regexp"
	"unicode"

	"materialscat/internal/apierrors"
)

// defaultMaxBodyBytes is the security stage's size guard.
const defaultMaxBodyBytes = 50 * 1024 * 1024

// cyrillicMajorityThreshold exempts predominantly-Cyrillic bodies (product
// names, descriptions) from the injection-pattern scan, which otherwise
// false-positives heavily on Cyrillic punctuation and quoting conventions.
const cyrillicMajorityThreshold = 0.30

// injectionPatterns is a conservative SQL-injection/XSS denylist; it is
// intentionally narrow to keep the false-positive rate low against
// legitimate free-form material descriptions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)--\s*$`),
	regexp.MustCompile(`(?i);\s*drop\s+table\b`),
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on(error|load)\s*=`),
}

// securityOptions configures stage 5.
type securityOptions struct {
	Production   bool
	MaxBodyBytes int64
}

// security is stage 5: enforces a max request size, rejects bodies matching
// injection patterns unless predominantly Cyrillic, and sets standard
// security headers when running in production.
func security(opts securityOptions) Middleware {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			}

			if cached, ok := CachedBody(r.Context()); ok && containsInjection(cached) {
				WriteError(w, apierrors.New(apierrors.CodeValidation, "request body contains disallowed pattern"))
				return
			}

			if opts.Production {
				setSecurityHeaders(w.Header())
			}

			next.ServeHTTP(w, r)
		})
	}
}

func containsInjection(body []byte) bool {
	if isPredominantlyCyrillic(body) {
		return false
	}
	for _, pat := range injectionPatterns {
		if pat.Match(body) {
			return true
		}
	}
	return false
}

func isPredominantlyCyrillic(body []byte) bool {
	var cyrillic, letters int
	for _, r := range string(body) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Cyrillic, r) {
			cyrillic++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(cyrillic)/float64(letters) > cyrillicMajorityThreshold
}

func setSecurityHeaders(h http.Header) {
	h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
	h.Set("Content-Security-Policy", "default-src 'none'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
}
