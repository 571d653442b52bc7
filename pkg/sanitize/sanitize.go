package sanitize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ansiEscape matches CSI colour/control sequences emitted by container logs
var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// Sanitizer masks configured secrets in arbitrary text. Every occurrence of
// a secret is replaced with an asterisk run of the same length, so the
// output length equals the input length and no length class leaks.
type Sanitizer struct {
	mu      sync.RWMutex
	secrets []string // sorted longest-first
}

// New builds a Sanitizer over the given secrets. Empty strings are ignored.
func New(secrets ...string) *Sanitizer {
	s := &Sanitizer{}
	s.AddSecrets(secrets...)
	return s
}

// AddSecrets registers additional secret values at runtime.
func (s *Sanitizer) AddSecrets(secrets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		s.secrets = append(s.secrets, sec)
	}
	// Longest first so a secret embedded in a longer one never survives
	// as a partial remainder.
	sort.Slice(s.secrets, func(i, j int) bool {
		return len(s.secrets[i]) > len(s.secrets[j])
	})
}

// Mask replaces every occurrence of every registered secret with an
// equal-length asterisk run.
func (s *Sanitizer) Mask(text string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sec := range s.secrets {
		if strings.Contains(text, sec) {
			text = strings.ReplaceAll(text, sec, mask(len(sec)))
		}
	}
	return text
}

// MaskError is a nil-tolerant convenience for logging caught errors.
func (s *Sanitizer) MaskError(err error) string {
	if err == nil {
		return ""
	}
	return s.Mask(err.Error())
}

// StripANSI removes colour and control escape sequences.
func StripANSI(text string) string {
	return ansiEscape.ReplaceAllString(text, "")
}

// Caller identifies the user whose personal data must not appear in
// container logs shown back to them.
type Caller struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// ContainerLogs prepares raw container output for display: strips ANSI
// escapes, then masks the caller's identifying fields and every registered
// secret with equal-length asterisk runs.
func (s *Sanitizer) ContainerLogs(text string, caller Caller) string {
	text = StripANSI(text)

	fields := []string{caller.Username, caller.FirstName, caller.LastName}
	if caller.UserID != 0 {
		fields = append(fields, strconv.FormatInt(caller.UserID, 10))
	}
	for _, f := range fields {
		if f == "" {
			continue
		}
		text = strings.ReplaceAll(text, f, mask(len(f)))
	}
	return s.Mask(text)
}

func mask(n int) string {
	return strings.Repeat("*", n)
}
