package workflow

// ValidUserInfo reports whether the text stays within the allowed character
// policy for user-supplied identity: Latin and Cyrillic letters, digits,
// space, comma, period, hyphen and newline. Acceptance and rejection are
// exact complements over all strings.
func ValidUserInfo(text string) bool {
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= 'а' && r <= 'я':
		case r >= 'А' && r <= 'Я':
		case r == 'ё' || r == 'Ё':
		case r >= '0' && r <= '9':
		case r == ' ' || r == ',' || r == '.' || r == '-' || r == '\n':
		default:
			return false
		}
	}
	return true
}
