package console

import (
	"fmt"
	"strings"

	"github.com/pitline/pitline/schema"
)

// LineKind tells the painter which theme style a display line takes.
type LineKind int

const (
	LineSystem LineKind = iota
	LineHeader
	LineBody
	LineDivider
)

// RenderLine is one wrapped display line. Lines are recomputed on every
// render from the current messages and viewport width; Key is stable
// across re-renders for the same logical line even while the underlying
// message content is still streaming in.
type RenderLine struct {
	Key  string
	Text string
	Kind LineKind
}

const bodyIndent = "  "

// BuildLines flattens messages into the ordered display lines the
// viewport scrolls over. System messages wrap with no indentation.
// User and assistant messages get a header line (speaker plus time)
// followed by body lines indented two columns; divider segments pass
// through verbatim.
func BuildLines(messages []schema.ChatMessage, maxWidth int) []RenderLine {
	var lines []RenderLine
	for _, msg := range messages {
		switch msg.Role {
		case schema.RoleSystem:
			for i, row := range Wrap(msg.Content, maxWidth) {
				lines = append(lines, RenderLine{
					Key:  fmt.Sprintf("%d:s:%d", msg.ID, i),
					Text: row,
					Kind: LineSystem,
				})
			}
		default:
			lines = append(lines, RenderLine{
				Key:  fmt.Sprintf("%d:h", msg.ID),
				Text: speakerLabel(msg.Role) + " " + msg.Time.Format("15:04:05"),
				Kind: LineHeader,
			})
			lines = append(lines, buildBody(msg, maxWidth)...)
		}
	}
	return lines
}

func buildBody(msg schema.ChatMessage, maxWidth int) []RenderLine {
	bodyWidth := maxWidth - len(bodyIndent)
	var lines []RenderLine
	n := 0
	for _, segment := range strings.Split(msg.Content, "\n") {
		if isDivider(segment) {
			lines = append(lines, RenderLine{
				Key:  fmt.Sprintf("%d:b:%d", msg.ID, n),
				Text: segment,
				Kind: LineDivider,
			})
			n++
			continue
		}
		for _, row := range Wrap(segment, bodyWidth) {
			lines = append(lines, RenderLine{
				Key:  fmt.Sprintf("%d:b:%d", msg.ID, n),
				Text: bodyIndent + row,
				Kind: LineBody,
			})
			n++
		}
	}
	return lines
}

// isDivider reports whether a segment is a horizontal rule: nothing but
// repeated '-' or '=' characters.
func isDivider(segment string) bool {
	if len(segment) < 3 {
		return false
	}
	c := segment[0]
	if c != '-' && c != '=' {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] != c {
			return false
		}
	}
	return true
}

func speakerLabel(role schema.Role) string {
	switch role {
	case schema.RoleUser:
		return "you"
	case schema.RoleAssistant:
		return "copilot"
	default:
		return string(role)
	}
}
