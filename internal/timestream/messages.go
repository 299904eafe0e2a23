// ABOUTME: Wire messages of the time stream websocket
// ABOUTME: JSON envelopes for time, play state, load progress and remote commands
package timestream

// Message is the envelope for every text frame
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message types
const (
	TypeHello    = "server/hello"
	TypeSnapshot = "player/snapshot"
	TypeTime     = "player/time"
	TypeState    = "player/state"
	TypeProgress = "player/load_progress"
	TypeError    = "player/error"
	TypeCommand  = "client/command"
)

// ProtocolVersion is sent in the hello
const ProtocolVersion = 1

// Hello is sent to every client on connect
type Hello struct {
	ServerID string `json:"server_id"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// Snapshot carries the latest known player state
type Snapshot struct {
	SongTime float64 `json:"song_time"`
	Playing  bool    `json:"playing"`
	Progress float64 `json:"progress"`
}

// TimeUpdate reports the current song time in seconds
type TimeUpdate struct {
	SongTime float64 `json:"song_time"`
}

// PlayState reports a play state change
type PlayState struct {
	Playing bool `json:"playing"`
}

// LoadProgress reports the resolved fraction of a load
type LoadProgress struct {
	Fraction float64 `json:"fraction"`
}

// ErrorMessage reports a failure
type ErrorMessage struct {
	Error string `json:"error"`
}

// Command is a remote control request from a client
type Command struct {
	Command string  `json:"command"` // play, pause, seek, rate, loop, clear_loop, mute, volume
	Value   float64 `json:"value,omitempty"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
	Track   string  `json:"track,omitempty"`
	Muted   bool    `json:"muted,omitempty"`
}
