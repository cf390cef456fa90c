package ui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	ColorSuccess   = lipgloss.Color("#00D26A") // connected, valid signatures
	ColorWarning   = lipgloss.Color("#FFB800")
	ColorError     = lipgloss.Color("#FF4444")
	ColorAddress   = lipgloss.Color("#00B4D8") // addresses, hashes
	ColorValue     = lipgloss.Color("#FFFFFF")
	ColorMeta      = lipgloss.Color("#6C6C6C")
	ColorBorder    = lipgloss.Color("#1E3A5F")
	ColorChain     = lipgloss.Color("#9B5DE5")
	ColorHighlight = lipgloss.Color("#F15BB5") // picker cursor
	ColorSmart     = lipgloss.Color("#FF8C42") // smart accounts
)

// Base styles.
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleAddress = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleValue   = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	StyleMeta    = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleChain   = lipgloss.NewStyle().Foreground(ColorChain).Bold(true)
	StyleSmart   = lipgloss.NewStyle().Foreground(ColorSmart).Bold(true)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorHighlight).
			Foreground(lipgloss.Color("#000000")).
			Bold(true)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorChain).
			Bold(true).
			MarginBottom(1)
)

// Banner returns the w3link banner shown by the root command.
func Banner(version string) string {
	art := `
  ┬ ┬┌─┐┬  ┬┌┐┌┬┌─
  │││ ─┤│  ││││├┴┐
  └┴┘└─┘┴─┘┴┘└┘┴ ┴`
	tagline := StyleMeta.Render("  wallet sessions for EVM chains  v" + version)
	return StyleChain.Render(art) + "\n" + tagline + "\n"
}

// Success formats a success message.
func Success(msg string) string { return StyleSuccess.Render("✓ " + msg) }

// Warn formats a warning message.
func Warn(msg string) string { return StyleWarning.Render("⚠ " + msg) }

// Err formats an error message.
func Err(msg string) string { return StyleError.Render("✗ " + msg) }

// Info formats a neutral status line.
func Info(msg string) string { return StyleValue.Render("ℹ " + msg) }

// Hint formats a suggested next command.
func Hint(msg string) string { return StyleMeta.Render("→ " + msg) }

// Addr formats an address.
func Addr(a string) string { return StyleAddress.Render(a) }

// Val formats a value.
func Val(v string) string { return StyleValue.Render(v) }

// Meta formats metadata text.
func Meta(m string) string { return StyleMeta.Render(m) }

// ChainName formats a chain name.
func ChainName(c string) string { return StyleChain.Render(c) }

// AccountBadge colors an account type label; smart accounts stand out.
func AccountBadge(kind string) string {
	if kind == "smart account" {
		return StyleSmart.Render(kind)
	}
	return StyleMeta.Render(kind)
}

// TruncateAddr shortens an address for display: 0x1234…5678.
func TruncateAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
