package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// stdout receives human-readable command output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// colorsEnabled determines if color output is enabled
var colorsEnabled = os.Getenv("NO_COLOR") == ""

func colorize(text, color string) string {
	if !colorsEnabled {
		return text
	}
	return color + text + colorReset
}

// Success prints a message with a green checkmark.
func Success(format string, args ...any) {
	fmt.Fprintf(stdout, "%s %s\n", colorize("✓", colorGreen), fmt.Sprintf(format, args...))
}

// Error prints an error message with a red X to stderr.
func Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s Error: %s\n", colorize("✗", colorRed), fmt.Sprintf(format, args...))
}

// Warning prints a message with a yellow warning sign.
func Warning(format string, args ...any) {
	fmt.Fprintf(stdout, "%s Warning: %s\n", colorize("⚠", colorYellow), fmt.Sprintf(format, args...))
}

// Info prints an informational line.
func Info(format string, args ...any) {
	fmt.Fprintln(stdout, fmt.Sprintf(format, args...))
}

// Header prints an underlined section header followed by a blank line.
func Header(text string) {
	fmt.Fprintln(stdout, colorize(text, colorBold))
	fmt.Fprintln(stdout, strings.Repeat("=", len(text)))
	fmt.Fprintln(stdout)
}

// Subheader prints a subsection header.
func Subheader(text string) {
	fmt.Fprintln(stdout, colorize(text, colorBold))
	fmt.Fprintln(stdout, strings.Repeat("-", len(text)))
}

// Field prints a labeled value.
func Field(label, value string) {
	fmt.Fprintf(stdout, "%s %s\n", colorize(fmt.Sprintf("%-16s", label+":"), colorGray), value)
}

// EmptyLine prints an empty line.
func EmptyLine() {
	fmt.Fprintln(stdout)
}

// StatusIcon returns a colored icon for a check status or outcome kind.
func StatusIcon(status string) string {
	switch strings.ToLower(status) {
	case "pass", "ok", "replaced", "already_up_to_date", "restored":
		return colorize("✓", colorGreen)
	case "warn", "warning", "not_present", "not_found_after_wait":
		return colorize("⚠", colorYellow)
	case "fail", "error", "failed":
		return colorize("✗", colorRed)
	default:
		return "•"
	}
}

// Table is a plain-text table with aligned columns.
type Table struct {
	Headers []string
	Rows    [][]string
	writer  io.Writer
}

// NewTable creates a table that prints to the command output.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, writer: stdout}
}

// AddRow adds a row to the table
func (t *Table) AddRow(values ...string) {
	t.Rows = append(t.Rows, values)
}

// Print renders the table.
func (t *Table) Print() {
	if len(t.Headers) == 0 {
		return
	}

	widths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		widths[i] = len(header)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Headers are padded before coloring so escape codes do not skew widths.
	cells := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		cells[i] = colorize(pad(h, widths[i]), colorBold)
	}
	_, _ = fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))

	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	_, _ = fmt.Fprintln(t.writer, strings.Repeat("-", total))

	for _, row := range t.Rows {
		cells := make([]string, len(t.Headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = pad(row[i], widths[i])
			} else {
				cells[i] = pad("", widths[i])
			}
		}
		_, _ = fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// JSON prints v as indented JSON.
func JSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatBytes formats byte sizes in human-readable format (B, KB, MB, etc.).
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
