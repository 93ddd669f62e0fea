// Package redact strips credentials from strings before they are logged.
// Transport errors in particular tend to echo the failing request, which
// can carry the learner's bearer token; everything the engine logs about a
// failed call goes through here first.
package redact

import "regexp"

// Placeholders substituted for matched material.
const (
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	CredentialPlaceholder = "[REDACTED]"
)

var (
	// Standard three-part base64url JWT.
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// Authorization header values and bearer prefixes.
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/]+`)

	// token=... in URLs or form bodies.
	tokenParamRegex = regexp.MustCompile(`(?i)(token|access_token|api[_-]?key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`)
)

// Error redacts err's message; a nil error yields an empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// String replaces anything token-shaped in s with placeholders.
func String(s string) string {
	s = jwtRegex.ReplaceAllString(s, TokenPlaceholder)
	s = bearerRegex.ReplaceAllString(s, "${1}"+TokenPlaceholder)
	s = tokenParamRegex.ReplaceAllString(s, "${1}${2}"+CredentialPlaceholder)
	return s
}
