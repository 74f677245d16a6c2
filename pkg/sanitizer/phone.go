package sanitizer

import "strings"

// NormalizePhone strips formatting characters from a phone number,
// keeping digits and a single leading plus. Returns "" for input that
// carries no digits at all.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting noise
		default:
			return ""
		}
	}
	if strings.TrimPrefix(b.String(), "+") == "" {
		return ""
	}
	return b.String()
}
