// Package httpserver is the presentation-layer boundary: it renders session
// state snapshots and the transcript, and turns HTTP requests into the same
// user intents the core exposes (mic toggle, focus mode, code edits,
// end-session).
package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hanish-rishen/InterviewPartner/internal/capture"
	"github.com/hanish-rishen/InterviewPartner/internal/config"
	"github.com/hanish-rishen/InterviewPartner/internal/pipeline"
	"github.com/hanish-rishen/InterviewPartner/internal/session"
	"github.com/hanish-rishen/InterviewPartner/internal/speech"
)

// SynthFactory builds a synthesizer bound to a playback sink; the sink is the
// per-session audio relay the browser attaches to.
type SynthFactory func(sink speech.PCMSink, ev speech.Events) speech.Synthesizer

// Server bundles the echo router and the live session registry.
type Server struct {
	Router *echo.Echo

	cfg      config.Config
	sessCfg  session.Config
	pipe     session.Pipeline
	engines  session.EngineFactory
	synths   SynthFactory
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	sess  *session.Session
	relay *audioRelay
}

// New constructs the HTTP server with production adapters.
func New(cfg config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		sessCfg: session.DefaultConfig(),
		pipe:    pipeline.NewClient(cfg.PipelineURL),
		engines: func(h capture.Handler) capture.Engine {
			return capture.NewStreamEngine(cfg.AssemblyAIKey, "", h)
		},
		synths: func(sink speech.PCMSink, ev speech.Events) speech.Synthesizer {
			return speech.NewDeepgramSpeaker(cfg.DeepgramKey, cfg.DeepgramModel, sink, ev)
		},
		sessions: make(map[string]*entry),
	}
	s.Router = s.routes()
	return s
}

// WithPipeline overrides the chat backend client (used by tests).
func (s *Server) WithPipeline(p session.Pipeline) *Server { s.pipe = p; return s }

// WithEngines overrides the capture engine factory (used by tests).
func (s *Server) WithEngines(f session.EngineFactory) *Server { s.engines = f; return s }

// WithSynths overrides the synthesizer factory (used by tests).
func (s *Server) WithSynths(f SynthFactory) *Server { s.synths = f; return s }

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/sessions", s.createSession)
	e.GET("/sessions/:id", s.getState)
	e.GET("/sessions/:id/messages", s.getMessages)
	e.POST("/sessions/:id/messages", s.postMessage)
	e.POST("/sessions/:id/listening", s.setListening)
	e.POST("/sessions/:id/focus", s.setFocus)
	e.POST("/sessions/:id/code", s.updateCode)
	e.POST("/sessions/:id/instructions/ack", s.ackInstructions)
	e.POST("/sessions/:id/end", s.endSession)
	e.GET("/sessions/:id/audio", s.audioSocket)

	return e
}

type createSessionRequest struct {
	Role              string `json:"role"`
	PreferredLanguage string `json:"preferred_language"`
	DurationMinutes   int    `json:"duration_minutes"`
}

func validRole(role string) bool {
	switch role {
	case session.RoleSalesRepresentative, session.RoleSoftwareEngineer,
		session.RoleProductManager, session.RoleRetailAssociate:
		return true
	}
	return false
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !validRole(req.Role) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
	}
	if req.DurationMinutes < 0 || req.DurationMinutes > 120 {
		return echo.NewHTTPError(http.StatusBadRequest, "duration out of range")
	}
	lang := req.PreferredLanguage
	if lang == "" {
		lang = "Python"
	}

	id := uuid.NewString()
	relay := newAudioRelay()
	sess := session.New(id, req.Role, lang, req.DurationMinutes, s.sessCfg, s.pipe,
		s.engines,
		func(ev speech.Events) speech.Synthesizer { return s.synths(relay, ev) })

	s.mu.Lock()
	s.sessions[id] = &entry{sess: sess, relay: relay}
	s.mu.Unlock()

	sess.Start()
	log.Printf("httpserver: session %s created (role=%q)", id, req.Role)
	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) lookup(c echo.Context) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.sessions[c.Param("id")]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	return en, nil
}

func (s *Server) getState(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, en.sess.Snapshot())
}

func (s *Server) getMessages(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, en.sess.Messages())
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) postMessage(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty text")
	}
	en.sess.SendMessage(req.Text, false)
	return c.NoContent(http.StatusAccepted)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setListening(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	en.sess.SetListening(req.Enabled)
	return c.JSON(http.StatusOK, en.sess.Snapshot())
}

func (s *Server) setFocus(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	en.sess.SetFocusMode(req.Enabled)
	return c.JSON(http.StatusOK, en.sess.Snapshot())
}

type updateCodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (s *Server) updateCode(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	var req updateCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	en.sess.UpdateCode(req.Code, req.Language)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ackInstructions(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	en.sess.AcknowledgeInstructions()
	return c.NoContent(http.StatusNoContent)
}

type endSessionResponse struct {
	Feedback string `json:"feedback"`
}

func (s *Server) endSession(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.pipelineTimeout())
	defer cancel()
	fb := en.sess.End(ctx)
	return c.JSON(http.StatusOK, endSessionResponse{Feedback: fb})
}
