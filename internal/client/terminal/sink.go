package terminal

// Kind identifies a display event.
type Kind int

const (
	// KindLine is plain output.
	KindLine Kind = iota
	// KindBanner is a framed headline, optionally with a large figure title.
	KindBanner
	// KindBroadcast is an out-of-band notice from the partner node.
	KindBroadcast
	// KindTimer replaces the countdown readout.
	KindTimer
	// KindHUD replaces the status bar.
	KindHUD
	// KindClear wipes the screen.
	KindClear
)

// Tone hints at how a line should be colored.
type Tone int

const (
	ToneNormal Tone = iota
	ToneInfo
	ToneWarn
	ToneError
	ToneSuccess
	ToneMuted
	ToneCipher
)

// HUD is the status bar content.
type HUD struct {
	TeamID            string
	NodeID            string
	AttemptsRemaining int
	MaxAttempts       int
}

// Event is one ordered display instruction.
type Event struct {
	Kind  Kind
	Tone  Tone
	Lines []string
	// Typed asks the sink to print Lines at typing speed.
	Typed bool
	// Figure is rendered large above a banner when set.
	Figure string
	Timer  string
	Danger bool
	HUD    HUD
}

// Sink renders the terminal. Calls arrive in order from one goroutine at a
// time and must not call back into the Machine.
type Sink interface {
	Emit(ev Event)
	SetInput(enabled bool, prompt string)
}
