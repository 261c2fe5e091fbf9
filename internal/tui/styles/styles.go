package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Amber      = lipgloss.Color("#E5A00D")
	SlateDark  = lipgloss.Color("#1F2937")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)
)

// Header and footer
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(SlateDark).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Padding(0, 1)
)

// Row styles
var (
	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(White).
				Background(SlateLight)

	NormalRowStyle = lipgloss.NewStyle().
			Foreground(LightGray)
)

// Raw category glyphs (unstyled)
const (
	FolderChar = "▸"
	AudioChar  = "♪"
	VideoChar  = "▶"
	ImageChar  = "▣"
	FileChar   = "·"
)

// Cover state styles
var (
	CoverPendingStyle  = lipgloss.NewStyle().Foreground(DimGray)
	CoverTryingStyle   = lipgloss.NewStyle().Foreground(Amber)
	CoverResolvedStyle = lipgloss.NewStyle().Foreground(Green)
	CoverNoneStyle     = lipgloss.NewStyle().Foreground(Red)
)

// Help styles
var (
	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Amber)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(DimGray)
)

// Filter styles
var (
	FilterPromptStyle = lipgloss.NewStyle().
				Foreground(Amber).
				Bold(true)

	MatchHighlightStyle = lipgloss.NewStyle().
				Foreground(Amber).
				Bold(true)
)

// SpinnerFrames are the frames of the loading indicator
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Truncate truncates a string to the given display width with an ellipsis
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 1 {
		return string(runes[:width])
	}
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// Pad pads a string to the given display width
func Pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + spaces(width-w)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
