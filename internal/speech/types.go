package speech

// Events receives synthesis lifecycle notifications. For every Speak call
// OnStart fires at most once, before exactly one OnEnd. Cancellation and
// interruption are folded into OnEnd, never reported through OnError.
type Events struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Synthesizer speaks text to the session's audio sink. Speak is
// fire-and-forget: completion is only ever signaled through Events.OnEnd.
// A second Speak while one is in flight preempts the first.
type Synthesizer interface {
	Speak(text string)
	Cancel()
}

// PCMSink consumes synthesized 48kHz PCM16LE mono audio. Reset drops any
// queued frames immediately so interruption feels instant.
type PCMSink interface {
	WritePCM(pcm []byte)
	Reset()
}

// NopSink discards audio; used until a playback channel is attached.
type NopSink struct{}

func (NopSink) WritePCM([]byte) {}
func (NopSink) Reset()          {}
