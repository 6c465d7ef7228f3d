package console

import (
	"fmt"
	"io"
	"strings"
)

type screen struct {
	out io.Writer
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

func (s *screen) EnterAltScreen() {
	// Alt screen, clear, and SGR mouse reporting on.
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[H\x1b[2J\x1b[?1000h\x1b[?1006h")
}

func (s *screen) ExitAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1006l\x1b[?1000l\x1b[?1049l\x1b[?25h")
}

func (s *screen) Render(lines []string, cursorRow, cursorCol int) error {
	if cursorRow < 1 {
		cursorRow = 1
	}
	if cursorCol < 1 {
		cursorCol = 1
	}
	var b strings.Builder
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[H\x1b[2J")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
	}
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", cursorRow, cursorCol))
	b.WriteString("\x1b[?25h")
	_, err := io.WriteString(s.out, b.String())
	return err
}

// styleLine wraps a display line in the theme colors for its kind.
func styleLine(ln RenderLine, theme tuiTheme) string {
	switch ln.Kind {
	case LineHeader:
		fg := theme.HeaderFG
		if strings.HasPrefix(ln.Text, "you ") {
			fg = theme.UserFG
		}
		return ansiBold + ansiFgRGB(fg) + ln.Text + ansiReset
	case LineSystem:
		return ansiDim + ansiItalic + ansiFgRGB(theme.SystemFG) + ln.Text + ansiReset
	case LineDivider:
		return ansiFgRGB(theme.DividerFG) + ln.Text + ansiReset
	default:
		return ln.Text
	}
}

// renderStatusBar paints the full-width top bar: app name on the left,
// venue label and a scrollback indicator on the right.
func renderStatusBar(venue string, offset, width int, theme tuiTheme) string {
	left := " pitline"
	right := venue
	if offset > 0 {
		right = fmt.Sprintf("%s  +%d lines", right, offset)
	}
	right += " "
	gap := width - len([]rune(left)) - len([]rune(right))
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	bar = trimToWidth(bar, width)
	return ansiBgRGB(theme.StatusBG) + ansiFgRGB(theme.StatusFG) + ansiBold + bar + ansiReset
}

func trimToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width])
}

// renderInputRows lays out the prompt prefix plus the editor content
// into screen rows, wrapping at width and indenting continuation rows
// under the prefix. It also returns the 1-based cursor position within
// those rows.
func renderInputRows(prefix, input string, cursor, width int) ([]string, int, int) {
	inputRunes := []rune(input)
	cursor = min(max(cursor, 0), len(inputRunes))
	prefixWidth := len([]rune(stripANSI(prefix)))
	if width <= 0 {
		width = prefixWidth + len(inputRunes) + 1
	}
	indent := strings.Repeat(" ", min(prefixWidth, width-1))
	avail := width - len([]rune(indent))
	if avail < 1 {
		avail = 1
	}

	rows := []string{}
	line := make([]rune, 0, avail)
	cursorRow, cursorCol := 1, prefixWidth+1
	cursorSet := false

	flush := func() {
		head := indent
		if len(rows) == 0 {
			head = prefix
		}
		rows = append(rows, head+string(line))
		line = line[:0]
	}

	for i, r := range inputRunes {
		if !cursorSet && i == cursor {
			cursorRow = len(rows) + 1
			cursorCol = len([]rune(indent)) + len(line) + 1
			if len(rows) == 0 {
				cursorCol = prefixWidth + len(line) + 1
			}
			cursorSet = true
		}
		if r == '\n' {
			flush()
			continue
		}
		if len(line) >= avail {
			flush()
		}
		line = append(line, r)
	}
	if !cursorSet {
		cursorRow = len(rows) + 1
		cursorCol = len([]rune(indent)) + len(line) + 1
		if len(rows) == 0 {
			cursorCol = prefixWidth + len(line) + 1
		}
	}
	flush()
	if cursorCol > width {
		cursorCol = width
	}
	return rows, cursorRow, cursorCol
}

// stripANSI removes CSI color sequences so prefix width counts only
// visible cells.
func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == 0x1b {
			i = skipEscape(s, i+1)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
