package tgui

import (
	"html"
	"strings"
)

// ParseMode is the Telegram parse mode these helpers produce.
const ParseMode = "HTML"

// H is HTML that is safe to send with ParseMode. Treat it as already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + string(inner) + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Spoiler hides s until tapped.
func Spoiler(s string) H { return wrap("tg-spoiler", Esc(s)) }

// JoinH joins parts with sep (escaped). Blank parts are skipped.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		ss = append(ss, string(p))
	}
	return H(strings.Join(ss, html.EscapeString(sep)))
}
