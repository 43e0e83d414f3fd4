package session

import (
	"context"
	"time"

	"github.com/hanish-rishen/InterviewPartner/internal/capture"
	"github.com/hanish-rishen/InterviewPartner/internal/speech"
	"github.com/hanish-rishen/InterviewPartner/internal/turn"
)

// Interview roles offered at session start. Only the software engineer role
// enables code-context augmentation, proactive nudges, the coding-question
// extractor, and the instructions dialog.
const (
	RoleSalesRepresentative = "Sales Representative"
	RoleSoftwareEngineer    = "Software Engineer"
	RoleProductManager      = "Product Manager"
	RoleRetailAssociate     = "Retail Associate"
)

// Pipeline is the chat backend boundary: one finalized utterance in, one
// interviewer reply out, plus end-of-session feedback.
type Pipeline interface {
	SendMessage(ctx context.Context, text, sessionID, role string) (string, error)
	GetFeedback(ctx context.Context, sessionID string) (string, error)
}

// EngineFactory builds a capture engine wired to the session's event handler.
type EngineFactory func(h capture.Handler) capture.Engine

// SynthFactory builds a synthesizer wired to the session's output events.
type SynthFactory func(ev speech.Events) speech.Synthesizer

// Message is one entry of the visible transcript.
type Message struct {
	Role    string `json:"role"` // "user" | "agent"
	Content string `json:"content"`
}

const (
	MessageRoleUser  = "user"
	MessageRoleAgent = "agent"
)

// Snapshot is the read-only state the presentation layer renders per tick.
type Snapshot struct {
	SessionID        string `json:"session_id"`
	Role             string `json:"role"`
	Active           bool   `json:"active"`
	Listening        bool   `json:"listening"`
	UserSpeaking     bool   `json:"user_speaking"`
	AISpeaking       bool   `json:"ai_speaking"`
	FocusMode        bool   `json:"focus_mode"`
	Loading          bool   `json:"loading"`
	TurnState        string `json:"turn_state"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Code             string `json:"code"`
	CodeLanguage     string `json:"code_language"`
	AwaitingAck      bool   `json:"awaiting_ack"`
	Feedback         string `json:"feedback,omitempty"`
	LastAlert        string `json:"last_alert,omitempty"`
}

// Config bundles the turn-taking policy with the session liveness windows.
// The inactivity and proactive windows are deliberately independent; see
// DESIGN.md for the precedence between the two watchers.
type Config struct {
	Turn turn.Config

	// InactivityWindow force-ends the session when no listening or pipeline
	// activity occurs for this long. InactivityPoll is how often it is
	// checked.
	InactivityWindow time.Duration
	InactivityPoll   time.Duration

	// ProactivePoll is the nudge check interval. A nudge fires when code was
	// edited within ProactiveCodeRecent but the user has been quiet for more
	// than ProactiveQuiet.
	ProactivePoll       time.Duration
	ProactiveCodeRecent time.Duration
	ProactiveQuiet      time.Duration
}

// DefaultConfig returns the production liveness policy.
func DefaultConfig() Config {
	return Config{
		Turn:                turn.DefaultConfig(),
		InactivityWindow:    3 * time.Minute,
		InactivityPoll:      10 * time.Second,
		ProactivePoll:       30 * time.Second,
		ProactiveCodeRecent: time.Minute,
		ProactiveQuiet:      2 * time.Minute,
	}
}
