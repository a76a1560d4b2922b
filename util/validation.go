package util

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxUsernameLength bounds local usernames
const MaxUsernameLength = 30

// Pre-compiled regex for WebFinger username validation
var webFingerValidCharsRegex = regexp.MustCompile(`^[A-Za-z0-9\-._~!$&'()*+,;=]+$`)

// IsValidWebFingerUsername validates that a username can be addressed as
// acct:username@domain without percent-encoding.
//
// Returns (true, "") if valid, or (false, "error message") if invalid.
func IsValidWebFingerUsername(username string) (bool, string) {
	if len(username) == 0 {
		return false, "Username must be at least 1 character"
	}
	if len(username) > MaxUsernameLength {
		return false, "Username must be at most 30 characters"
	}
	if !webFingerValidCharsRegex.MatchString(username) {
		return false, "Username contains invalid characters. Only A-Z, a-z, 0-9, and -._~!$&'()*+,;= are allowed"
	}
	for _, r := range username {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return false, "Username contains non-printable characters"
		}
	}
	return true, ""
}

// IsReservedUsername reports usernames that collide with server routes or
// the instance actor
func IsReservedUsername(username, localDomain string) bool {
	switch strings.ToLower(username) {
	case "actor", "inbox", "admin", "root", "nodeinfo", "metrics":
		return true
	}
	return strings.EqualFold(username, localDomain)
}
