package capture

// ErrorKind classifies engine failures for the turn controller.
type ErrorKind int

const (
	// KindPermission: the engine rejected our credentials or the audio
	// source is not allowed. Fatal to listening until re-enabled.
	KindPermission ErrorKind = iota
	// KindNoDevice: no usable audio source.
	KindNoDevice
	// KindNoSpeech: the attempt ended without any speech heard.
	KindNoSpeech
	// KindAborted: the engine acknowledging an abort we issued ourselves.
	KindAborted
	// KindGeneric: anything else; recoverable.
	KindGeneric
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindNoDevice:
		return "no-device"
	case KindNoSpeech:
		return "no-speech"
	case KindAborted:
		return "aborted"
	default:
		return "generic"
	}
}

// Handler receives engine events. Callbacks may be invoked from the engine's
// internal goroutines; consumers must serialize. Nil callbacks are allowed.
type Handler struct {
	OnStart  func()
	OnResult func(final bool, text string)
	OnError  func(kind ErrorKind, err error)
	OnEnd    func()
}

// Engine is one speech-to-text capture engine. Start/Stop/Abort delimit a
// single capture attempt; completion is only ever signaled through OnEnd,
// never through the return of a control call.
type Engine interface {
	// Start opens the engine for a new attempt. Fire-and-forget: a non-nil
	// error means the attempt never began, and the Handler has already been
	// told (OnError then OnEnd).
	Start() error
	// Stop requests a graceful end; buffered audio is still transcribed.
	Stop()
	// Abort tears the attempt down immediately, discarding partial results.
	Abort()
	// SendPCM16KLE feeds 16kHz little-endian mono PCM into the live attempt.
	SendPCM16KLE(pcm []byte) error
}
