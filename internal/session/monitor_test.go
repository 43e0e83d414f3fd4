package session

import (
	"context"
	"strings"
	"testing"
	"time"
)

func setClock(s *Session, at time.Time) {
	s.mu.Lock()
	s.now = func() time.Time { return at }
	s.mu.Unlock()
}

func waitIdlePipeline(t *testing.T, s *Session) {
	t.Helper()
	waitFor(t, func() bool { return !s.Snapshot().Loading })
}

func TestInactivityEndsSession(t *testing.T) {
	pipe := newFakePipeline("hello")
	s, _, _ := newTestSession(RoleSalesRepresentative, "", 0, pipe)
	s.Start()
	pipe.awaitPayload(t)
	waitIdlePipeline(t, s)

	start := time.Now()
	setClock(s, start.Add(time.Minute))
	s.checkInactivity()
	if !s.Snapshot().Active {
		t.Fatalf("session ended before the inactivity window elapsed")
	}

	setClock(s, start.Add(4*time.Minute))
	s.checkInactivity()
	snap := s.Snapshot()
	if snap.Active {
		t.Fatalf("session still active after the inactivity window")
	}
	if snap.Feedback == "" {
		t.Fatalf("inactivity end must still fetch feedback")
	}
}

func TestInactivitySuspendedInFocusMode(t *testing.T) {
	pipe := newFakePipeline("hello")
	s, _, _ := newTestSession(RoleSoftwareEngineer, "Python", 0, pipe)
	s.Start()
	pipe.awaitPayload(t)
	waitIdlePipeline(t, s)

	s.SetFocusMode(true)
	setClock(s, time.Now().Add(10*time.Minute))
	s.checkInactivity()
	if !s.Snapshot().Active {
		t.Fatalf("focus mode must suspend the inactivity watcher")
	}
	s.End(context.Background())
}

func TestProactiveNudgeForSilentCoder(t *testing.T) {
	pipe := newFakePipeline("How is the loop coming along?")
	s, _, _ := newTestSession(RoleSoftwareEngineer, "Python", 0, pipe)
	s.Start()
	defer s.End(context.Background())
	pipe.awaitPayload(t)
	waitIdlePipeline(t, s)

	// Recent editor activity relative to the advanced clock, long quiet spell.
	at := time.Now().Add(3 * time.Minute)
	setClock(s, at)
	s.UpdateCode("def solve():\n    pass", "Python")

	s.checkProactive()
	payload := pipe.awaitPayload(t)
	if !strings.HasPrefix(payload, "[SYSTEM: User has been coding silently for 2 minutes.") {
		t.Fatalf("nudge payload = %q", payload)
	}
	if !strings.Contains(payload, "```python\ndef solve():") {
		t.Fatalf("nudge must carry the current code: %q", payload)
	}
	// The nudge is hidden: no user entry in the transcript.
	for _, m := range s.Messages() {
		if m.Role == MessageRoleUser {
			t.Fatalf("nudge leaked into transcript: %+v", m)
		}
	}

	// The quiet marker was reset, so the next poll must not refire.
	waitIdlePipeline(t, s)
	s.checkProactive()
	select {
	case p := <-pipe.delivered:
		t.Fatalf("nudge refired immediately: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProactiveOnlyForEngineers(t *testing.T) {
	pipe := newFakePipeline("reply")
	s, _, _ := newTestSession(RoleProductManager, "", 0, pipe)
	s.Start()
	defer s.End(context.Background())
	pipe.awaitPayload(t)
	waitIdlePipeline(t, s)

	setClock(s, time.Now().Add(3*time.Minute))
	s.checkProactive()
	select {
	case p := <-pipe.delivered:
		t.Fatalf("nudge fired for a non-engineering role: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdownEndsSessionOnce(t *testing.T) {
	pipe := newFakePipeline("hello")
	s, _, _ := newTestSession(RoleRetailAssociate, "", 1, pipe)
	s.Start()
	pipe.awaitPayload(t)
	waitIdlePipeline(t, s)

	if r := s.Snapshot().RemainingSeconds; r > 60 || r < 55 {
		t.Fatalf("remaining = %d", r)
	}
	s.mu.Lock()
	s.remaining = 1
	s.mu.Unlock()

	s.tickCountdown()
	snap := s.Snapshot()
	if snap.Active || snap.RemainingSeconds != 0 {
		t.Fatalf("countdown expiry must end the session: %+v", snap)
	}
	pipe.mu.Lock()
	calls := pipe.fbCalls
	pipe.mu.Unlock()

	// Further ticks after the end are no-ops.
	s.tickCountdown()
	s.tickCountdown()
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if pipe.fbCalls != calls {
		t.Fatalf("countdown kept ending the session")
	}
	if s.Snapshot().RemainingSeconds != 0 {
		t.Fatalf("remaining moved after end")
	}
}

func TestNoCountdownWithoutBudget(t *testing.T) {
	pipe := newFakePipeline("hello")
	s, _, _ := newTestSession(RoleRetailAssociate, "", 0, pipe)
	s.Start()
	defer s.End(context.Background())
	pipe.awaitPayload(t)

	s.tickCountdown()
	if !s.Snapshot().Active {
		t.Fatalf("untimed session must not expire")
	}
	if s.Snapshot().RemainingSeconds != -1 {
		t.Fatalf("remaining = %d", s.Snapshot().RemainingSeconds)
	}
}
