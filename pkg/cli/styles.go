package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var (
	ColorPrimary = lipgloss.Color("#2563EB") // Blue - brand color
	ColorSuccess = lipgloss.Color("#22C55E") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorSubtle  = lipgloss.Color("#6B7280") // Gray
)

const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "!"
	SymbolInfo    = "→"
)

var (
	BrandStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(16)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorSubtle)

	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)
)

// StatusStyle colors a sync status
func StatusStyle(status types.SyncStatus) lipgloss.Style {
	switch status {
	case types.SyncStatusSuccess:
		return SuccessStyle
	case types.SyncStatusPartial:
		return WarningStyle
	case types.SyncStatusFailed:
		return ErrorStyle
	default:
		return DimStyle
	}
}
