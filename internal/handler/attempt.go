package handler

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

const attemptCookieName = "attempt_token"

// attemptTracker records server-side start times of test attempts, keyed by an
// opaque browser cookie. Start times never come from the client; losing the
// cookie means the attempt cannot be submitted.
type attemptTracker struct {
	mu     sync.Mutex
	starts map[string]map[string]time.Time
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{starts: make(map[string]map[string]time.Time)}
}

// token returns the attempt cookie value, issuing one if missing.
func (t *attemptTracker) token(w http.ResponseWriter, r *http.Request, secure bool) string {
	if c, err := r.Cookie(attemptCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	buf := make([]byte, 16)
	rand.Read(buf)
	token := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     attemptCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// start records the attempt start time for one test, replacing any earlier
// marker for the same test.
func (t *attemptTracker) start(token, testID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byTest := t.starts[token]
	if byTest == nil {
		byTest = make(map[string]time.Time)
		t.starts[token] = byTest
	}
	byTest[testID] = now
}

func (t *attemptTracker) startTime(token, testID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.starts[token][testID]
	return started, ok
}

// clear removes the attempt marker so a stale submission cannot reuse it.
func (t *attemptTracker) clear(token, testID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if byTest := t.starts[token]; byTest != nil {
		delete(byTest, testID)
		if len(byTest) == 0 {
			delete(t.starts, token)
		}
	}
}
