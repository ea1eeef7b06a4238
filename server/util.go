package server

import "strings"

// originAllowed reports whether origin matches one of allowed.
// "*" allows any origin. An entry without a port also matches the same
// scheme and host on any port, so "http://localhost" admits "http://localhost:3000".
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.TrimRight(a, "/")
		switch {
		case a == "*":
			return true
		case origin == a:
			return true
		case strings.HasPrefix(origin, a+":") && !strings.Contains(origin[len(a)+1:], "/"):
			return true
		}
	}
	return false
}
