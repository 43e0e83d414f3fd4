// Package session owns one active interview: the turn-taking controller
// state, its TimerSet, the adapters for speech capture and synthesis, the
// message log, and the liveness watchers layered on top.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hanish-rishen/InterviewPartner/internal/capture"
	"github.com/hanish-rishen/InterviewPartner/internal/extract"
	"github.com/hanish-rishen/InterviewPartner/internal/pipeline"
	"github.com/hanish-rishen/InterviewPartner/internal/speech"
	"github.com/hanish-rishen/InterviewPartner/internal/turn"
)

const pipelineTimeout = 60 * time.Second

// Session is one active interview. All turn state lives in the embedded
// turn.State record and is mutated only through dispatch, which applies the
// pure transition function and executes the resulting effects.
type Session struct {
	ID   string
	Role string

	cfg    Config
	pipe   Pipeline
	engine capture.Engine
	synth  speech.Synthesizer

	mu     sync.Mutex
	st     turn.State
	timers map[turn.TimerName]*time.Timer

	active            bool
	loading           bool
	messages          []Message
	feedback          string
	preferredLanguage string
	code              string
	codeLanguage      string
	remaining         int // seconds; negative when no duration budget was set
	awaitingAck       bool
	pendingSpeech     string
	lastAlert         string

	lastActivity   time.Time
	lastCodeChange time.Time
	lastUserSpeech time.Time

	now    func() time.Time
	stopCh chan struct{}
}

// New constructs a session. durationMinutes <= 0 means no duration budget.
// The engine and synthesizer factories receive handlers already wired into
// the session's event dispatch.
func New(id, role, preferredLanguage string, durationMinutes int, cfg Config, pipe Pipeline, newEngine EngineFactory, newSynth SynthFactory) *Session {
	s := &Session{
		ID:                id,
		Role:              role,
		cfg:               cfg,
		pipe:              pipe,
		timers:            make(map[turn.TimerName]*time.Timer),
		preferredLanguage: preferredLanguage,
		codeLanguage:      extract.NormalizeLanguage(preferredLanguage),
		remaining:         -1,
		now:               time.Now,
		stopCh:            make(chan struct{}),
	}
	if durationMinutes > 0 {
		s.remaining = durationMinutes * 60
	}
	s.engine = newEngine(capture.Handler{
		OnStart:  func() { s.dispatch(turn.Event{Kind: turn.EvCaptureStarted}) },
		OnResult: func(final bool, text string) { s.dispatch(turn.Event{Kind: turn.EvCaptureResult, Final: final, Text: text}) },
		OnError: func(kind capture.ErrorKind, err error) {
			log.Printf("session %s: capture error (%s): %v", id, kind, err)
			s.dispatch(turn.Event{Kind: turn.EvCaptureError, Err: mapErrorKind(kind)})
		},
		OnEnd: func() { s.dispatch(turn.Event{Kind: turn.EvCaptureEnd}) },
	})
	s.synth = newSynth(speech.Events{
		OnStart: func() { s.dispatch(turn.Event{Kind: turn.EvOutputStart}) },
		OnEnd:   func() { s.dispatch(turn.Event{Kind: turn.EvOutputEnd}) },
		OnError: func(err error) { log.Printf("session %s: synthesis error: %v", id, err) },
	})
	return s
}

// Start activates the session, launches the liveness watchers, and sends the
// role greeting through the pipeline as the opening (hidden) turn. For the
// software engineer role the first reply's speech is deferred until the
// instructions dialog is acknowledged.
func (s *Session) Start() {
	s.mu.Lock()
	s.active = true
	now := s.now()
	s.lastActivity = now
	s.lastCodeChange = now
	s.lastUserSpeech = now
	if s.Role == RoleSoftwareEngineer {
		s.awaitingAck = true
	}
	s.mu.Unlock()

	go s.runWatchers()

	greeting := fmt.Sprintf("Hi, I'm here for the %s interview.", s.Role)
	if s.Role == RoleSoftwareEngineer {
		greeting = fmt.Sprintf("Hi, I'm here for the %s interview. I'll be coding in %s.", s.Role, s.preferredLanguage)
	}
	s.SendMessage(greeting, true)
}

// dispatch is the single entry point for every external event: engine
// callbacks, timer firings, and user intents all go through here, one at a
// time under the session lock.
func (s *Session) dispatch(ev turn.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	// A working engine supersedes any earlier capture notice.
	if ev.Kind == turn.EvCaptureStarted {
		s.lastAlert = ""
	}
	st, fx := turn.Apply(s.cfg.Turn, s.st, ev)
	s.st = st
	if st.Listening {
		s.lastActivity = s.now()
	}
	s.executeLocked(fx)
}

func (s *Session) executeLocked(fx []turn.Effect) {
	for _, e := range fx {
		switch e.Kind {
		case turn.FxArmTimer:
			s.armTimerLocked(e)
		case turn.FxDisarmTimer:
			s.disarmTimerLocked(e.Timer)
		case turn.FxStartCapture:
			go func() {
				if err := s.engine.Start(); err != nil {
					log.Printf("session %s: capture start: %v", s.ID, err)
				}
			}()
		case turn.FxStopCapture:
			go s.engine.Stop()
		case turn.FxAbortCapture:
			go s.engine.Abort()
		case turn.FxCancelSpeech:
			go s.synth.Cancel()
		case turn.FxEmitUtterance:
			text := e.Text
			go s.SendMessage(text, false)
		case turn.FxNotifyPermission:
			s.lastAlert = "Microphone access required. Please allow microphone access in your browser settings."
		case turn.FxNotifyNoSpeech:
			if s.Role == RoleSoftwareEngineer {
				s.lastAlert = "Listening... Speak clearly into your mic, or enable Focus Mode if coding."
			} else {
				s.lastAlert = "Ready when you are. Please speak clearly. Check your microphone if needed."
			}
		}
	}
}

func (s *Session) armTimerLocked(e turn.Effect) {
	if t, ok := s.timers[e.Timer]; ok {
		t.Stop()
	}
	name, attempt, seq := e.Timer, e.Attempt, e.Seq
	s.timers[name] = time.AfterFunc(e.Duration, func() {
		s.dispatch(turn.Event{Kind: turn.EvTimerFired, Timer: name, Attempt: attempt, Seq: seq})
	})
}

func (s *Session) disarmTimerLocked(name turn.TimerName) {
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// SendMessage is the single injection path into the pipeline, shared by
// finalized utterances, typed input, the opening greeting, and proactive
// nudges. Hidden messages do not appear in the transcript and are not
// augmented with code context.
func (s *Session) SendMessage(text string, hidden bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if !hidden {
		s.lastUserSpeech = s.now()
	}
	payload := text
	if s.Role == RoleSoftwareEngineer && !hidden && strings.TrimSpace(s.code) != "" {
		payload = fmt.Sprintf("%s\n\n[Current Code in Editor]:\n```%s\n%s\n```", text, s.codeLanguage, s.code)
	}
	if !hidden {
		s.messages = append(s.messages, Message{Role: MessageRoleUser, Content: text})
	}
	s.loading = true
	s.lastActivity = s.now()
	id, role := s.ID, s.Role
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		reply, err := s.pipe.SendMessage(ctx, payload, id, role)
		if err != nil {
			log.Printf("session %s: send message: %v", id, err)
			reply = pipeline.FallbackReply
		}
		s.handleReply(reply)
	}()
}

// handleReply records the interviewer's reply, runs the content extractor,
// and hands the filtered text to the synthesizer (deferred while the
// instructions dialog is still open).
func (s *Session) handleReply(reply string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.lastActivity = s.now()
	s.messages = append(s.messages, Message{Role: MessageRoleAgent, Content: reply})
	if s.Role == RoleSoftwareEngineer {
		if q, ok := extract.Parse(reply, s.preferredLanguage); ok {
			s.code = q.EditorBuffer()
			s.codeLanguage = q.Language
		}
	}
	speakText := extract.Speakable(reply)
	if s.awaitingAck {
		s.pendingSpeech = speakText
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.synth.Speak(speakText)
}

// AcknowledgeInstructions dismisses the one-time onboarding dialog and lets
// the deferred reply be spoken.
func (s *Session) AcknowledgeInstructions() {
	s.mu.Lock()
	s.awaitingAck = false
	text := s.pendingSpeech
	s.pendingSpeech = ""
	s.mu.Unlock()
	if text != "" {
		s.synth.Speak(text)
	}
}

// SetListening is the manual mic toggle.
func (s *Session) SetListening(on bool) {
	s.dispatch(turn.Event{Kind: turn.EvSetListening, On: on})
}

// SetFocusMode toggles do-not-disturb: capture and nudges suspend, any
// in-flight synthesis is cancelled.
func (s *Session) SetFocusMode(on bool) {
	s.dispatch(turn.Event{Kind: turn.EvSetFocus, On: on})
}

// UpdateCode records an editor change from the presentation layer.
func (s *Session) UpdateCode(code, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	if language != "" {
		s.codeLanguage = extract.NormalizeLanguage(language)
	}
	s.lastCodeChange = s.now()
}

// FeedPCM forwards microphone audio to the live capture attempt.
func (s *Session) FeedPCM(pcm []byte) {
	_ = s.engine.SendPCM16KLE(pcm)
}

// End is the single terminal transition, shared by the explicit user action,
// the inactivity watcher, and the countdown reaching zero. It cancels every
// timer, aborts capture and synthesis, and fetches feedback. Calling End on
// an ended session returns the feedback already produced.
func (s *Session) End(ctx context.Context) string {
	s.mu.Lock()
	if !s.active {
		fb := s.feedback
		s.mu.Unlock()
		return fb
	}
	s.active = false
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.st = turn.State{}
	s.remaining = 0
	s.loading = true
	close(s.stopCh)
	s.mu.Unlock()

	s.synth.Cancel()
	s.engine.Abort()

	fb, err := s.pipe.GetFeedback(ctx, s.ID)
	if err != nil || fb == "" {
		if err != nil {
			log.Printf("session %s: get feedback: %v", s.ID, err)
		}
		fb = pipeline.FallbackFeedback
	}
	s.mu.Lock()
	s.feedback = fb
	s.loading = false
	s.mu.Unlock()
	return fb
}

// Snapshot returns the read-only view the presentation layer renders.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:        s.ID,
		Role:             s.Role,
		Active:           s.active,
		Listening:        s.st.Listening,
		UserSpeaking:     s.st.UserSpeaking,
		AISpeaking:       s.st.Speaking,
		FocusMode:        s.st.FocusMode,
		Loading:          s.loading,
		TurnState:        s.st.Turn.String(),
		RemainingSeconds: s.remaining,
		Code:             s.code,
		CodeLanguage:     s.codeLanguage,
		AwaitingAck:      s.awaitingAck,
		Feedback:         s.feedback,
		LastAlert:        s.lastAlert,
	}
}

// Messages returns a copy of the visible transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func mapErrorKind(kind capture.ErrorKind) turn.ErrorKind {
	switch kind {
	case capture.KindPermission, capture.KindNoDevice:
		return turn.ErrPermission
	case capture.KindNoSpeech:
		return turn.ErrNoSpeech
	case capture.KindAborted:
		return turn.ErrAborted
	default:
		return turn.ErrGeneric
	}
}
