package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Render formats err with a caret snippet of src. Errors without a position
// are returned as their plain message.
func Render(err error, src string) string {
	if err == nil {
		return ""
	}
	pos, ok := PositionOf(err)
	if !ok {
		return err.Error()
	}
	var header string
	switch kind := KindOf(err); {
	case kind == KindLexical:
		header = "LEXICAL ERROR"
	case kind.IsRuntime():
		header = "RUNTIME ERROR"
	default:
		header = "PARSE ERROR"
	}
	out := snippet(src, header, pos.Unit, pos.Line, pos.Column, message(err))
	var holder StackHolder
	if errors.As(err, &holder) && len(holder.StackTrace()) > 0 {
		out += "\n" + FormatStack(holder.StackTrace())
	}
	return out
}

// message strips the leading position prefix that Error() adds.
func message(err error) string {
	msg := err.Error()
	if pos, ok := PositionOf(err); ok {
		msg = strings.TrimPrefix(msg, pos.String()+": ")
	}
	return msg
}

func snippet(src, header, name string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, name, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
