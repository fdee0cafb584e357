package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

var (
	outputFormat           = OutputTable
	out          io.Writer = os.Stdout
)

// SetOutput sets the output format and destination
func SetOutput(format string, w io.Writer) error {
	switch format {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("unknown output format %q, want table, json or yaml", format)
	}
	outputFormat = format
	if w != nil {
		out = w
	}
	return nil
}

// PrintStructured writes data as json or yaml when one of those formats is
// selected, and returns true if it did
func PrintStructured(data interface{}) bool {
	switch outputFormat {
	case OutputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.Encode(data)
		return true
	case OutputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		enc.Encode(toYAMLValue(data))
		enc.Close()
		return true
	}
	return false
}

// toYAMLValue round-trips through json so yaml keys follow the json tags
func toYAMLValue(data interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return data
	}
	return v
}

// PrintSuccess prints a success message with a green checkmark
func PrintSuccess(msg string) {
	fmt.Fprintf(out, "  %s %s\n", SuccessStyle.Render(SymbolSuccess), msg)
}

// PrintSuccessf prints a formatted success message
func PrintSuccessf(format string, args ...interface{}) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

// PrintError prints an error message with a red X
func PrintError(err error) {
	fmt.Fprintf(out, "  %s %s\n", ErrorStyle.Render(SymbolError), ErrorStyle.Render(err.Error()))
}

// PrintWarning prints a warning message with a yellow indicator
func PrintWarning(msg string) {
	fmt.Fprintf(out, "  %s %s\n", WarningStyle.Render(SymbolWarning), WarningStyle.Render(msg))
}

// PrintInfo prints an info message with an arrow
func PrintInfo(msg string) {
	fmt.Fprintf(out, "  %s %s\n", DimStyle.Render(SymbolInfo), msg)
}

// PrintHeader prints a section header
func PrintHeader(title string) {
	fmt.Fprintf(out, "\n  %s\n\n", BoldStyle.Render(title))
}

// PrintKeyValue prints a key-value pair with consistent alignment
func PrintKeyValue(key, value string) {
	fmt.Fprintf(out, "  %s %s\n", KeyStyle.Render(key), value)
}

// Table represents a styled table
type Table struct {
	Headers []string
	Rows    [][]string
	Widths  []int
}

// NewTable creates a new table with the given headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		Headers: headers,
		Widths:  widths,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
			if len(cells[i]) > t.Widths[i] {
				t.Widths[i] = len(cells[i])
			}
		}
	}
	t.Rows = append(t.Rows, row)
}

// Print renders the table
func (t *Table) Print() {
	if len(t.Rows) == 0 {
		fmt.Fprintf(out, "  %s\n", DimStyle.Render("(none)"))
		return
	}

	fmt.Fprint(out, "  ")
	for i, h := range t.Headers {
		fmt.Fprint(out, TableHeaderStyle.Width(t.Widths[i]+2).Render(h))
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "  ")
	for i := range t.Headers {
		fmt.Fprint(out, DimStyle.Render(strings.Repeat("─", t.Widths[i])), "  ")
	}
	fmt.Fprintln(out)

	for _, row := range t.Rows {
		fmt.Fprint(out, "  ")
		for i, cell := range row {
			fmt.Fprint(out, TableCellStyle.Width(t.Widths[i]+2).Render(cell))
		}
		fmt.Fprintln(out)
	}
}

// FormatTime renders an optional timestamp
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
