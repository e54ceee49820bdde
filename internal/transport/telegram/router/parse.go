package router

import (
	"strings"
	"unicode"
)

// ParseCommand splits "/name@bot arg1 arg2" into its parts.
//
// ok is false when text is not a command, or when it is addressed to a
// different bot (@other). The bot name comparison is case-insensitive; an
// empty botName accepts any suffix. Names are lowercased.
func ParseCommand(text, botName string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.FieldsFunc(text, unicode.IsSpace)
	head := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		to := head[i+1:]
		head = head[:i]
		if botName != "" && !strings.EqualFold(to, strings.TrimPrefix(botName, "@")) {
			return "", nil, false
		}
	}
	if head == "" {
		return "", nil, false
	}
	return strings.ToLower(head), fields[1:], true
}
