package turn

import "time"

// TurnState is the exclusive turn-taking state. Exactly one holds at any
// instant; it is owned solely by the controller and mutated only in Apply.
type TurnState int

const (
	Idle TurnState = iota
	OutputSpeaking
	CaptureStarting
	CaptureActive
	CaptureFinalizing
	Cooldown
)

func (s TurnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case OutputSpeaking:
		return "output-speaking"
	case CaptureStarting:
		return "capture-starting"
	case CaptureActive:
		return "capture-active"
	case CaptureFinalizing:
		return "capture-finalizing"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// TimerName identifies one named countdown in the controller's TimerSet.
// Timers are armed and disarmed only through effects so that their lifecycle
// cannot drift from the state transitions that own them.
type TimerName int

const (
	TimerSettle TimerName = iota
	TimerSilence
	TimerFinalDebounce
	TimerMaxDuration
	TimerWatchdog
	TimerRetry
)

func (t TimerName) String() string {
	switch t {
	case TimerSettle:
		return "settle"
	case TimerSilence:
		return "silence"
	case TimerFinalDebounce:
		return "final-debounce"
	case TimerMaxDuration:
		return "max-duration"
	case TimerWatchdog:
		return "watchdog"
	case TimerRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ErrorKind classifies capture-engine errors for the controller.
type ErrorKind int

const (
	// ErrPermission covers microphone permission denial and missing devices.
	// Fatal to listening until the user re-enables it.
	ErrPermission ErrorKind = iota
	// ErrNoSpeech means the engine heard nothing during the attempt.
	ErrNoSpeech
	// ErrAborted is the engine acknowledging a self-initiated abort.
	ErrAborted
	// ErrGeneric is any other engine error; recoverable.
	ErrGeneric
)

// EventKind tags an external event delivered to the controller.
type EventKind int

const (
	EvOutputStart EventKind = iota
	EvOutputEnd
	EvCaptureStarted
	EvCaptureResult
	EvCaptureError
	EvCaptureEnd
	EvTimerFired
	EvSetListening
	EvSetFocus
)

// Event is one tagged external occurrence: an engine callback, a timer
// firing, or an explicit user intent. Timer events carry the Attempt (and for
// the watchdog the result Seq) captured when the timer was armed, so stale
// firings from a finished attempt are discarded idempotently.
type Event struct {
	Kind    EventKind
	Timer   TimerName
	Attempt int
	Seq     int
	Final   bool
	Text    string
	Err     ErrorKind
	On      bool
}

// EffectKind tags a side-effect command produced by Apply. The runtime
// executes effects in order; Apply itself never touches an engine or a clock.
type EffectKind int

const (
	FxStartCapture EffectKind = iota
	FxStopCapture
	FxAbortCapture
	FxCancelSpeech
	FxArmTimer
	FxDisarmTimer
	FxEmitUtterance
	FxNotifyPermission
	FxNotifyNoSpeech
)

// Effect is one side-effect command.
type Effect struct {
	Kind     EffectKind
	Timer    TimerName
	Duration time.Duration
	Attempt  int
	Seq      int
	Text     string
}

// Config holds the turn-taking timing policy.
type Config struct {
	// SettleDelay is waited after output speech ends before starting capture,
	// letting the output device drain so the engine does not hear the tail.
	SettleDelay time.Duration
	// SilenceWithText ends the attempt once buffered speech trails off.
	SilenceWithText time.Duration
	// SilenceNoText tolerates hesitation while nothing has been heard yet.
	SilenceNoText time.Duration
	// FinalDebounce absorbs trailing engine output after a final result.
	FinalDebounce time.Duration
	// MaxUtterance is the hard ceiling on one capture attempt.
	MaxUtterance time.Duration
	// WatchdogTick is the repeating check for an attempt that produced text
	// but then stalled without the engine ever signaling completion.
	WatchdogTick time.Duration
	// RetryDelay is waited before re-attempting capture after an empty end.
	RetryDelay time.Duration
	// ResumeDelay is waited before capture resumes after leaving focus mode.
	ResumeDelay time.Duration
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     300 * time.Millisecond,
		SilenceWithText: 1200 * time.Millisecond,
		SilenceNoText:   800 * time.Millisecond,
		FinalDebounce:   400 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		WatchdogTick:    3 * time.Second,
		RetryDelay:      time.Second,
		ResumeDelay:     500 * time.Millisecond,
	}
}

// State is the controller's session-state record. Every cross-cutting flag
// the turn cycle depends on lives here and is mutated only inside Apply.
type State struct {
	Turn TurnState
	// Listening is the user-facing mic toggle. Cleared only by explicit user
	// action or a permission error, never by transient engine failures.
	Listening bool
	// FocusMode suspends capture starts without otherwise altering turns.
	FocusMode bool
	// UserSpeaking latches true on the first speech evidence in an attempt.
	UserSpeaking bool
	// Speaking mirrors the output adapter: true between its start/end events.
	Speaking bool
	// Buffer is the best available text for the current capture attempt.
	Buffer string
	// BufferFinal marks Buffer as a final engine result.
	BufferFinal bool
	// Attempt is the capture attempt generation; timers armed for an earlier
	// generation are ignored when they fire.
	Attempt int
	// Starting guards against duplicate engine starts from overlapping
	// timer callbacks.
	Starting bool
	// Seq counts results within the attempt, for watchdog stall detection.
	Seq int
}
