package speech

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramSpeaker synthesizes speech through the Deepgram Aura websocket API
// and streams the PCM into a sink. One utterance is in flight at a time; a
// new Speak or a Cancel preempts the current one, which surfaces as a plain
// OnEnd (interruption is expected, not an error).
type DeepgramSpeaker struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	sink       PCMSink
	ev         Events

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int

	// evMu orders lifecycle events across overlapping utterances: a
	// preempted utterance must not report its end after the utterance that
	// replaced it has reported its start.
	evMu       sync.Mutex
	startedGen int
}

// NewDeepgramSpeaker creates a synthesizer. An empty model selects a default
// Aura voice.
func NewDeepgramSpeaker(apiKey, model string, sink PCMSink, ev Events) *DeepgramSpeaker {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &DeepgramSpeaker{apiKey: apiKey, model: model, sampleRate: 48000, encoding: "linear16", sink: sink, ev: ev}
}

// Speak starts synthesizing text, preempting any utterance in flight.
func (d *DeepgramSpeaker) Speak(text string) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	go d.run(ctx, gen, text)
}

// Cancel stops the in-flight utterance, if any. Queued audio is dropped so
// the interruption is immediate; OnEnd fires once the stream winds down.
func (d *DeepgramSpeaker) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.sink.Reset()
}

func (d *DeepgramSpeaker) run(ctx context.Context, gen int, text string) {
	var startOnce sync.Once
	markStarted := func() {
		startOnce.Do(func() {
			d.evMu.Lock()
			defer d.evMu.Unlock()
			if gen < d.startedGen {
				return
			}
			d.startedGen = gen
			if d.ev.OnStart != nil {
				d.ev.OnStart()
			}
		})
	}
	defer func() {
		d.mu.Lock()
		if d.gen == gen {
			d.cancel = nil
		}
		d.mu.Unlock()
		d.evMu.Lock()
		defer d.evMu.Unlock()
		// Only the most recently started utterance owns the end event; a
		// preempted one folds silently into its successor.
		if d.startedGen == gen && d.ev.OnEnd != nil {
			d.ev.OnEnd()
		}
	}()

	fail := func(err error) {
		log.Printf("speech: %v", err)
		if d.ev.OnError != nil {
			d.ev.OnError(err)
		}
		// The turn cycle must resume even when synthesis never produced
		// audio, so a failed utterance still starts and ends.
		markStarted()
	}

	if d.apiKey == "" {
		fail(fmt.Errorf("speech: deepgram api key missing"))
		return
	}
	if text == "" {
		markStarted()
		return
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var lastRecvUnix int64
	var seenAudio int32

	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		markStarted()
		if ctx.Err() != nil {
			return nil
		}
		b := make([]byte, len(data))
		copy(b, data)
		d.sink.WritePCM(b)
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		fail(fmt.Errorf("speech: create ws client: %w", err))
		return
	}

	stopped := false
	stopClient := func() {
		if !stopped {
			stopped = true
			dg.Stop()
		}
	}
	defer stopClient()

	if ok := dg.Connect(); !ok {
		fail(fmt.Errorf("speech: deepgram connect failed"))
		return
	}

	if err := dg.SpeakWithText(text); err != nil {
		fail(fmt.Errorf("speech: speak text: %w", err))
		return
	}
	if err := dg.Flush(); err != nil {
		log.Printf("speech: flush error: %v", err)
	}

	// The websocket has no explicit done frame for a flushed utterance;
	// treat a quiet stream as finished, bounded by a hard deadline.
	idleWindow := 400 * time.Millisecond
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(60 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&seenAudio) == 1 {
				last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
				if time.Since(last) > idleWindow {
					return
				}
			}
			if time.Now().After(deadline) {
				return
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
