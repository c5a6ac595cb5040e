package manifest

import "strings"

const maxNameLength = 255

// validDottedName checks interface and error names: two or more elements
// separated by dots.
func validDottedName(s string) bool {
	if s == "" || len(s) > maxNameLength {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if !validElement(p) {
			return false
		}
	}
	return true
}

// validMemberName checks method, signal and property names.
func validMemberName(s string) bool {
	return len(s) <= maxNameLength && validElement(s)
}

// validElement: non-empty, [A-Za-z0-9_], not starting with a digit.
func validElement(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
