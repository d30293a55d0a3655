package tui

// Keybinding constants
const (
	KeyTab        = "tab"
	KeyShiftTab   = "shift+tab"
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyPane1      = "1"
	KeyPane2      = "2"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeySettings   = "s"
	KeyActingUser = "u"
	KeyApprove    = "a"
	KeyReject     = "r"
	KeyEmergency  = "x"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("Tab: switch pane | 1/2: jump | j/k: select | u: acting user | a/r/x: approve/reject/override | s: settings | q: quit")
}
