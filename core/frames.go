package core

// FrameKind names the closed set of frame variants.
type FrameKind int

const (
	FrameKindOther                  FrameKind = iota // No wire representation.
	FrameKindAudio                                   // Linear PCM audio, either direction.
	FrameKindTransportMessage                        // Control message, normal priority.
	FrameKindTransportMessageUrgent                  // Control message, urgent priority.
	FrameKindInterruption                            // Start of a user interruption.
)

func (k FrameKind) String() string {
	switch k {
	case FrameKindAudio:
		return "audio"
	case FrameKindTransportMessage:
		return "transport_message"
	case FrameKindTransportMessageUrgent:
		return "transport_message_urgent"
	case FrameKindInterruption:
		return "interruption"
	default:
		return "other"
	}
}

// Frame is a unit of data exchanged with the transport. The set of
// implementations is closed: only types in this package satisfy it.
type Frame interface {
	Kind() FrameKind
	isFrame()
}

// OutputAudioFrame carries pipeline audio towards the peer.
type OutputAudioFrame struct {
	AudioChunk
}

func (*OutputAudioFrame) Kind() FrameKind { return FrameKindAudio }
func (*OutputAudioFrame) isFrame()        {}

// InputAudioFrame carries audio received from the peer.
type InputAudioFrame struct {
	AudioChunk
}

func (*InputAudioFrame) Kind() FrameKind { return FrameKindAudio }
func (*InputAudioFrame) isFrame()        {}

// TransportMessageFrame carries an out-of-band message for the peer. Message
// must be JSON-serializable.
type TransportMessageFrame struct {
	Message any
}

func (*TransportMessageFrame) Kind() FrameKind { return FrameKindTransportMessage }
func (*TransportMessageFrame) isFrame()        {}

// TransportMessageUrgentFrame is a TransportMessageFrame that the scheduler
// should send ahead of queued audio.
type TransportMessageUrgentFrame struct {
	Message any
}

func (*TransportMessageUrgentFrame) Kind() FrameKind { return FrameKindTransportMessageUrgent }
func (*TransportMessageUrgentFrame) isFrame()        {}

// StartInterruptionFrame signals that the user started talking over the bot.
type StartInterruptionFrame struct{}

func (*StartInterruptionFrame) Kind() FrameKind { return FrameKindInterruption }
func (*StartInterruptionFrame) isFrame()        {}

// KeypadEntry is a single DTMF key.
type KeypadEntry string

const (
	KeypadZero  KeypadEntry = "0"
	KeypadOne   KeypadEntry = "1"
	KeypadTwo   KeypadEntry = "2"
	KeypadThree KeypadEntry = "3"
	KeypadFour  KeypadEntry = "4"
	KeypadFive  KeypadEntry = "5"
	KeypadSix   KeypadEntry = "6"
	KeypadSeven KeypadEntry = "7"
	KeypadEight KeypadEntry = "8"
	KeypadNine  KeypadEntry = "9"
	KeypadStar  KeypadEntry = "*"
	KeypadPound KeypadEntry = "#"
)

// InputDTMFFrame is a keypad press reported by the peer.
type InputDTMFFrame struct {
	Button KeypadEntry
}

func (*InputDTMFFrame) Kind() FrameKind { return FrameKindOther }
func (*InputDTMFFrame) isFrame()        {}
