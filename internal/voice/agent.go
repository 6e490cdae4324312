package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/storage"
)

// ErrSessionNotFound means the token names no live session; the call was
// never set up, already ended, or timed out idle.
var ErrSessionNotFound = errors.New("call session not found")

// Agent owns the live call sessions. The telephony bridge drives it in one
// of two shapes: webhook vendors call StartSession/HandleUtterance/
// EndSession per HTTP request, streaming vendors hand a Transport to a
// Session directly via NewSession.
type Agent struct {
	classifier  *Classifier
	tools       *ToolRouter
	callLogs    *storage.CallLogRepository
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*liveSession

	stop chan struct{}
}

type liveSession struct {
	session  *Session
	lastSeen time.Time
}

// NewAgent creates the session manager and starts its idle reaper.
func NewAgent(classifier *Classifier, tools *ToolRouter, callLogs *storage.CallLogRepository, idleTimeout time.Duration) *Agent {
	a := &Agent{
		classifier:  classifier,
		tools:       tools,
		callLogs:    callLogs,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*liveSession),
		stop:        make(chan struct{}),
	}
	go a.reapLoop()
	return a
}

// NewSession creates an unmanaged session for a streaming transport.
func (a *Agent) NewSession(token, callerHash string) *Session {
	return NewSession(token, callerHash, a.classifier, a.tools, a.callLogs, a.idleTimeout)
}

// StartSession creates a managed session and returns its token and the
// greeting to speak.
func (a *Agent) StartSession(callerHash string) (string, string) {
	token := uuid.NewString()
	s := a.NewSession(token, callerHash)

	a.mu.Lock()
	a.sessions[token] = &liveSession{session: s, lastSeen: time.Now()}
	a.mu.Unlock()

	log.Info().Str("session", token).Msg("call session started")
	return token, s.Greeting()
}

// HandleUtterance advances a managed session. When the session reports the
// call over, it is closed and removed.
func (a *Agent) HandleUtterance(ctx context.Context, token, text string) (string, bool, error) {
	a.mu.Lock()
	live, ok := a.sessions[token]
	if ok {
		live.lastSeen = time.Now()
	}
	a.mu.Unlock()
	if !ok {
		return "", false, ErrSessionNotFound
	}

	reply, done := live.session.HandleUtterance(ctx, text)
	if done {
		a.remove(token, "completed")
	}
	return reply, done, nil
}

// EndSession handles an explicit hangup.
func (a *Agent) EndSession(token string) {
	a.remove(token, "hangup")
}

// SessionCount returns the number of live sessions.
func (a *Agent) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Stop shuts down the reaper and closes every live session.
func (a *Agent) Stop() {
	close(a.stop)

	a.mu.Lock()
	tokens := make([]string, 0, len(a.sessions))
	for token := range a.sessions {
		tokens = append(tokens, token)
	}
	a.mu.Unlock()

	for _, token := range tokens {
		a.remove(token, "hangup")
	}
}

func (a *Agent) remove(token, outcome string) {
	a.mu.Lock()
	live, ok := a.sessions[token]
	delete(a.sessions, token)
	a.mu.Unlock()
	if ok {
		live.session.Close(outcome)
		log.Info().Str("session", token).Str("outcome", outcome).Msg("call session ended")
	}
}

// reapLoop drops sessions with no caller utterance for the idle timeout.
func (a *Agent) reapLoop() {
	ticker := time.NewTicker(a.idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-a.idleTimeout)

			a.mu.Lock()
			var idle []string
			for token, live := range a.sessions {
				if live.lastSeen.Before(cutoff) {
					idle = append(idle, token)
				}
			}
			a.mu.Unlock()

			for _, token := range idle {
				a.remove(token, "idle_timeout")
			}
		}
	}
}
