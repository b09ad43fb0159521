package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance bound to the command's stdout.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: isTerminal(),
	}
}

func isTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// IsJSON reports whether JSON output mode is active.
func (o *Output) IsJSON() bool { return o.jsonMode }

// JSON writes the value as indented JSON.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println writes a line.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Success writes a green line.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(colorGreen, format, args...)
}

// Error writes a red line.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(colorRed, format, args...)
}

// Warn writes a yellow line.
func (o *Output) Warn(format string, args ...interface{}) {
	o.colored(colorYellow, format, args...)
}

// Dim writes a dimmed line.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(colorDim, format, args...)
}

// Header writes a bold cyan line.
func (o *Output) Header(format string, args ...interface{}) {
	o.colored(colorBold+colorCyan, format, args...)
}

func (o *Output) colored(color, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", color, text, colorReset)
	} else {
		fmt.Fprintln(o.writer, text)
	}
}

// Table writes rows as aligned columns.
func (o *Output) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&b, "%-*s  ", widths[i], h)
	}
	o.Header("%s", strings.TrimRight(b.String(), " "))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		o.Println(strings.TrimRight(b.String(), " "))
	}
}
