package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PayloadInt parses callback payload as int.
func PayloadInt(c tele.Context) (int, error) {
	return strconv.Atoi(CallbackPayload(c))
}

// PayloadParts splits the callback payload into parts using the given
// separator.
func PayloadParts(c tele.Context, sep string) ([]string, error) {
	p := CallbackPayload(c)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// PayloadIDAndCode parses a payload like "12345|ccna" into a numeric user
// identifier and a string code.
func PayloadIDAndCode(c tele.Context, sep string) (int64, string, error) {
	parts, err := PayloadParts(c, sep)
	if err != nil {
		return 0, "", err
	}
	if len(parts) != 2 {
		return 0, "", strconv.ErrSyntax
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return id, parts[1], nil
}
