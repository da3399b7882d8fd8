// Package format prepares text for Telegram MarkdownV2 rendering.
package format

import "strings"

// RawMarker prefixes text that is already valid MarkdownV2 and must bypass
// escaping. The marker itself is stripped before sending.
const RawMarker = "MD:"

const mdV2Specials = "_*[]()~`>#+-=|{}.!"

// IsRaw reports whether the text carries the raw-formatting marker.
func IsRaw(text string) bool {
	return strings.HasPrefix(text, RawMarker)
}

// EscapeMarkdownV2 prefixes every MarkdownV2 control character with a single
// backslash. All other characters pass through untouched.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(mdV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Prepare readies one text fragment for MarkdownV2 output: marked text loses
// the marker and passes through verbatim, everything else is escaped.
func Prepare(text string) string {
	if IsRaw(text) {
		return strings.TrimPrefix(text, RawMarker)
	}
	return EscapeMarkdownV2(text)
}
