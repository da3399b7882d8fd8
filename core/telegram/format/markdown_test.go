package format

import (
	"strings"
	"testing"
)

func TestEscapeMarkdownV2AllSpecials(t *testing.T) {
	in := "_*[]()~`>#+-=|{}.!"
	got := EscapeMarkdownV2(in)
	for i, r := range in {
		want := "\\" + string(r)
		if !strings.Contains(got, want) {
			t.Errorf("special %d (%q) not escaped in %q", i, r, got)
		}
	}
	if len(got) != 2*len(in) {
		t.Errorf("expected exactly one backslash per special, got %q", got)
	}
}

func TestEscapeMarkdownV2LeavesPlainText(t *testing.T) {
	in := "Жил был пёс 123 abc"
	if got := EscapeMarkdownV2(in); got != in {
		t.Errorf("plain text altered: %q -> %q", in, got)
	}
}

func TestPrepareRawRoundTrip(t *testing.T) {
	body := "*bold* and `code` with _underscore_"
	got := Prepare(RawMarker + body)
	if got != body {
		t.Errorf("raw text must pass through verbatim: %q -> %q", body, got)
	}
}

func TestPrepareEscapesUnmarked(t *testing.T) {
	got := Prepare("a.b-c")
	if got != `a\.b\-c` {
		t.Errorf("unexpected escape result: %q", got)
	}
}

func TestPrepareMarkerOnlyAtPrefix(t *testing.T) {
	in := "see MD: later"
	got := Prepare(in)
	if !strings.Contains(got, "MD:") {
		t.Errorf("mid-string marker must not be stripped: %q", got)
	}
}
