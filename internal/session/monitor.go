package session

import (
	"context"
	"fmt"
	"time"
)

// The three liveness watchers are pure observers of the session's activity
// markers. They act only through the same public entry points the user-facing
// controls use: End for termination, SendMessage for the proactive nudge.

func (s *Session) runWatchers() {
	inactivity := time.NewTicker(s.cfg.InactivityPoll)
	proactive := time.NewTicker(s.cfg.ProactivePoll)
	countdown := time.NewTicker(time.Second)
	defer inactivity.Stop()
	defer proactive.Stop()
	defer countdown.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-inactivity.C:
			s.checkInactivity()
		case <-proactive.C:
			s.checkProactive()
		case <-countdown.C:
			s.tickCountdown()
		}
	}
}

// checkInactivity force-ends the session when neither listening nor pipeline
// activity happened within the window. Focus mode suspends it entirely.
func (s *Session) checkInactivity() {
	s.mu.Lock()
	if !s.active || s.st.FocusMode {
		s.mu.Unlock()
		return
	}
	idle := s.now().Sub(s.lastActivity)
	s.mu.Unlock()
	if idle >= s.cfg.InactivityWindow {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		s.End(ctx)
	}
}

// checkProactive nudges a silently coding engineer: recent editor activity,
// a long quiet spell, and an otherwise idle session trigger a hidden prompt
// asking the interviewer to check in on progress.
func (s *Session) checkProactive() {
	s.mu.Lock()
	if !s.active || s.Role != RoleSoftwareEngineer || s.st.FocusMode {
		s.mu.Unlock()
		return
	}
	now := s.now()
	codedRecently := now.Sub(s.lastCodeChange) < s.cfg.ProactiveCodeRecent
	quietTooLong := now.Sub(s.lastUserSpeech) > s.cfg.ProactiveQuiet
	busy := s.st.Speaking || s.st.Listening || s.loading
	if !codedRecently || !quietTooLong || busy {
		s.mu.Unlock()
		return
	}
	// Reset the quiet marker so the nudge does not refire every poll while
	// the user keeps coding without answering.
	s.lastUserSpeech = now
	prompt := fmt.Sprintf(
		"[SYSTEM: User has been coding silently for 2 minutes. Current code:\n```%s\n%s\n```\nAsk a brief, specific question about their implementation progress.]",
		s.codeLanguage, s.code)
	s.mu.Unlock()

	s.SendMessage(prompt, true)
}

// tickCountdown decrements the remaining-time budget once per second and
// forces the session end when it reaches zero. Once ended, further ticks are
// no-ops because End closed stopCh and cleared the active flag.
func (s *Session) tickCountdown() {
	s.mu.Lock()
	if !s.active || s.remaining < 0 {
		s.mu.Unlock()
		return
	}
	s.remaining--
	expired := s.remaining <= 0
	s.mu.Unlock()
	if expired {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		s.End(ctx)
	}
}
