package logging

import (
	"fmt"
	"strings"
)

const placeholder = "{}"

// Format replaces each {} in msg with fmt.Sprint of the next argument.
// Placeholders without a matching argument render empty and surplus
// arguments are ignored.
func Format(msg string, args ...any) string {
	if !strings.Contains(msg, placeholder) {
		return msg
	}
	var b strings.Builder
	b.Grow(len(msg))
	next := 0
	for {
		i := strings.Index(msg, placeholder)
		if i < 0 {
			b.WriteString(msg)
			return b.String()
		}
		b.WriteString(msg[:i])
		if next < len(args) {
			b.WriteString(fmt.Sprint(args[next]))
			next++
		}
		msg = msg[i+len(placeholder):]
	}
}
