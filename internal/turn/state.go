package turn

type State int

const (
	Idle State = iota
	Listening
	Transcribing
	Routing
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Transcribing:
		return "transcribing"
	case Routing:
		return "routing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}
