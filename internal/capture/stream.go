package capture

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultStreamURL is the AssemblyAI v3 realtime endpoint.
const DefaultStreamURL = "wss://streaming.assemblyai.com/v3/ws"

// StreamEngine is an Engine backed by a streaming transcription websocket.
// Each capture attempt is one websocket session: Start dials, Stop sends a
// Terminate message and lets buffered audio finish transcribing, Abort
// closes the socket outright.
type StreamEngine struct {
	apiKey  string
	baseURL string
	handler Handler

	mu sync.Mutex
	// wmu serializes every data write to the socket; the websocket allows a
	// single writer, and Stop's Terminate frame races the audio write loop.
	wmu       sync.Mutex
	conn      *websocket.Conn
	connected bool
	aborted   bool
	sawSpeech bool
	audioData chan []byte
	stopCh    chan struct{}
	endOnce   *sync.Once
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewStreamEngine creates a capture engine for the given API key. An empty
// baseURL selects the production endpoint.
func NewStreamEngine(apiKey, baseURL string, h Handler) *StreamEngine {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &StreamEngine{apiKey: apiKey, baseURL: baseURL, handler: h}
}

// Start dials the streaming endpoint and begins one capture attempt.
func (s *StreamEngine) Start() error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return fmt.Errorf("capture: attempt already live")
	}
	if s.apiKey == "" {
		s.mu.Unlock()
		err := fmt.Errorf("capture: api key is empty")
		s.emitError(KindPermission, err)
		s.emitEndDirect()
		return err
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	wsURL := s.baseURL + "?" + params.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, map[string][]string{"Authorization": {s.apiKey}})
	if err != nil {
		s.mu.Unlock()
		kind := KindGeneric
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			kind = KindPermission
		}
		werr := fmt.Errorf("capture: dial: %w", err)
		s.emitError(kind, werr)
		s.emitEndDirect()
		return werr
	}

	s.conn = conn
	s.connected = true
	s.aborted = false
	s.sawSpeech = false
	s.audioData = make(chan []byte, 1000)
	s.stopCh = make(chan struct{})
	s.endOnce = &sync.Once{}
	s.mu.Unlock()

	go s.readLoop(conn, s.stopCh, s.endOnce)
	go s.writeLoop(conn, s.audioData, s.stopCh)

	if s.handler.OnStart != nil {
		s.handler.OnStart()
	}
	return nil
}

// Stop requests a graceful end of the live attempt. The engine keeps
// transcribing buffered audio; OnEnd fires once the upstream terminates.
func (s *StreamEngine) Stop() {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	s.wmu.Lock()
	err := conn.WriteJSON(map[string]string{"type": "Terminate"})
	s.wmu.Unlock()
	if err != nil {
		log.Printf("capture: terminate write failed: %v", err)
		s.Abort()
	}
}

// Abort tears down the live attempt immediately. Partial results are
// discarded; the read loop reports the self-abort and then ends the attempt.
func (s *StreamEngine) Abort() {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	if connected {
		s.aborted = true
	}
	s.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	_ = conn.Close()
}

// SendPCM16KLE queues audio for the live attempt, dropping when saturated so
// a slow upstream never backs up the caller.
func (s *StreamEngine) SendPCM16KLE(pcm []byte) error {
	s.mu.Lock()
	connected := s.connected
	ch := s.audioData
	s.mu.Unlock()
	if !connected {
		return fmt.Errorf("capture: no live attempt")
	}
	select {
	case ch <- pcm:
		return nil
	default:
		log.Println("capture: audio buffer full, dropping packet")
		return nil
	}
}

func (s *StreamEngine) readLoop(conn *websocket.Conn, stopCh chan struct{}, once *sync.Once) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			aborted := s.aborted
			s.mu.Unlock()
			if aborted {
				s.emitError(KindAborted, err)
			} else if !isExpectedClose(err) {
				s.emitError(KindGeneric, fmt.Errorf("capture: read: %w", err))
			}
			s.finish(stopCh, once)
			return
		}
		if done := s.processMessage(message); done {
			s.finish(stopCh, once)
			return
		}
	}
}

// processMessage handles one upstream frame; returns true when the session
// is over.
func (s *StreamEngine) processMessage(message []byte) bool {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("capture: unmarshal message: %v", err)
		return false
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("capture: session began: id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("capture: unmarshal turn: %v", err)
			return false
		}
		if msg.Transcript != "" {
			s.mu.Lock()
			s.sawSpeech = true
			s.mu.Unlock()
		}
		if s.handler.OnResult != nil {
			s.handler.OnResult(msg.EndOfTurn, strings.TrimSpace(msg.Transcript))
		}
	case "Termination":
		return true
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return false
		}
		s.emitError(classifyUpstream(msg.Error), fmt.Errorf("capture: upstream: %s", msg.Error))
	default:
		log.Printf("capture: unknown message type: %s", base.Type)
	}
	return false
}

// finish ends the attempt exactly once: a silent attempt is reported as
// no-speech, then OnEnd fires and the connection state is cleared.
func (s *StreamEngine) finish(stopCh chan struct{}, once *sync.Once) {
	once.Do(func() {
		s.mu.Lock()
		silent := !s.sawSpeech && !s.aborted
		conn := s.conn
		s.conn = nil
		s.connected = false
		s.mu.Unlock()

		close(stopCh)
		if conn != nil {
			_ = conn.Close()
		}
		if silent {
			s.emitError(KindNoSpeech, fmt.Errorf("capture: no speech detected"))
		}
		s.emitEndDirect()
	})
}

func (s *StreamEngine) writeLoop(conn *websocket.Conn, audio <-chan []byte, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case pcm := <-audio:
			s.wmu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.wmu.Unlock()
			if err != nil {
				log.Printf("capture: audio write failed: %v", err)
				return
			}
		}
	}
}

func (s *StreamEngine) emitError(kind ErrorKind, err error) {
	if s.handler.OnError != nil {
		s.handler.OnError(kind, err)
	}
}

func (s *StreamEngine) emitEndDirect() {
	if s.handler.OnEnd != nil {
		s.handler.OnEnd()
	}
}

func classifyUpstream(text string) ErrorKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "auth"), strings.Contains(lower, "api key"):
		return KindPermission
	case strings.Contains(lower, "audio"), strings.Contains(lower, "sample rate"):
		return KindNoDevice
	default:
		return KindGeneric
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
