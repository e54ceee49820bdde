package tgui

import "testing"

func TestHelpers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		got  H
		want string
	}{
		{B("Some"), "<b>Some</b>"},
		{Spoiler("HTML"), "<tg-spoiler>HTML</tg-spoiler>"},
		{I("a<b"), "<i>a&lt;b</i>"},
		{Code(`"x" & y`), "<code>&#34;x&#34; &amp; y</code>"},
		{JoinH(" ", B("Some"), Spoiler("HTML")), "<b>Some</b> <tg-spoiler>HTML</tg-spoiler>"},
		{JoinH("\n", Esc("a"), "", Esc(" "), Esc("b")), "a\nb"},
		{JoinH(" "), ""},
	}
	for i, tt := range tests {
		if tt.got.String() != tt.want {
			t.Fatalf("case %d: got %q want %q", i, tt.got, tt.want)
		}
	}
}
