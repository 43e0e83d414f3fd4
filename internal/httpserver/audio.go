package httpserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// audioRelay forwards synthesized PCM to whichever browser socket is
// currently attached. The synthesizer is built at session creation, before
// any socket exists, so the relay starts detached and drops audio until
// attach.
type audioRelay struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newAudioRelay() *audioRelay { return &audioRelay{} }

func (r *audioRelay) attach(conn *websocket.Conn) {
	r.mu.Lock()
	prev := r.conn
	r.conn = conn
	r.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (r *audioRelay) detach(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
}

// WritePCM and Reset hold the relay lock across the socket write: the
// websocket allows a single writer, and a preempted utterance's audio
// callback can overlap both its successor's and a Cancel-driven Reset.
func (r *audioRelay) WritePCM(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	r.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		log.Printf("httpserver: audio write failed, detaching: %v", err)
		r.conn.Close()
		r.conn = nil
	}
}

// Reset has nothing buffered server-side; playback cut-off is signaled with
// an empty binary frame so the client can flush its jitter buffer.
func (r *audioRelay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	r.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	r.conn.WriteMessage(websocket.BinaryMessage, nil)
}

// audioSocket is the bidirectional audio bridge: inbound binary frames are
// 16kHz PCM16LE microphone audio fed to the capture engine, outbound binary
// frames are 48kHz PCM16LE synthesized speech.
func (s *Server) audioSocket(c echo.Context) error {
	en, err := s.lookup(c)
	if err != nil {
		return err
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	en.relay.attach(conn)
	defer func() {
		en.relay.detach(conn)
		conn.Close()
	}()
	log.Printf("httpserver: audio socket attached to session %s", c.Param("id"))

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("httpserver: audio socket closed abnormally: %v", err)
			}
			return nil
		}
		if kind == websocket.BinaryMessage && len(data) > 0 {
			en.sess.FeedPCM(data)
		}
	}
}

// pipelineTimeout bounds the final feedback request when a session ends.
func (s *Server) pipelineTimeout() time.Duration { return 60 * time.Second }
