package playback

import "fmt"

// CommandKind enumerates directives sent from the Queue to the Bridge.
type CommandKind int

const (
	CommandLoad CommandKind = iota
	CommandPlay
	CommandPause
	CommandStop
	CommandSetVolume
)

func (k CommandKind) String() string {
	switch k {
	case CommandLoad:
		return "load"
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandStop:
		return "stop"
	case CommandSetVolume:
		return "setvolume"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is fire-and-forget; the Bridge reports back through Events only.
type Command struct {
	Kind    CommandKind
	TrackID string
	Volume  int
}

type EventKind int

const (
	EventPlaying EventKind = iota
	EventPaused
	EventStopped
	EventFinishedTrack
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventFinishedTrack:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a transport fact. TrackID is set on EventFinishedTrack.
type Event struct {
	Kind    EventKind
	TrackID string
}

type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "play"
	case StatusPaused:
		return "pause"
	default:
		return "stop"
	}
}
