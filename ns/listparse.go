package ns

import (
	"net/url"
	"strconv"
	"strings"
)

// splitTargets breaks a comma/semicolon separated target list, with
// optional surrounding braces, into raw identifiers.
func splitTargets(data string) []string {
	data = strings.NewReplacer("{", "", "}", "").Replace(data)
	return strings.FieldsFunc(data, func(r rune) bool {
		return r == ',' || r == ';'
	})
}

// ParseTargetLogins resolves a target list to logins. Identifiers of
// the form ":<fd>" are resolved against the connected sessions and kept
// only when the referenced session is authenticated; unresolvable
// references are dropped. Duplicate logins introduced by fd resolution
// are suppressed.
func ParseTargetLogins(data string, sessions *SessionSet) []string {
	var logins []string
	seen := make(map[string]bool)
	for _, raw := range splitTargets(data) {
		login := raw
		if strings.HasPrefix(raw, ":") {
			fd, err := strconv.ParseInt(raw[1:], 10, 64)
			if err != nil {
				continue
			}
			target := sessions.ByFD(fd)
			if target == nil || target.User.Login == "" {
				continue
			}
			login = target.User.Login
		}
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		logins = append(logins, login)
	}
	return logins
}

// ParseTargetSessions resolves a target list directly to connected
// sessions, matching logins and ":<fd>" references against the session
// set. Only connected, authenticated sessions are returned.
func ParseTargetSessions(data string, sessions *SessionSet) []*Session {
	var targets []*Session
	seen := make(map[*Session]bool)
	add := func(s *Session) {
		if s != nil && s.User.Login != "" && !seen[s] {
			seen[s] = true
			targets = append(targets, s)
		}
	}
	for _, raw := range splitTargets(data) {
		if strings.HasPrefix(raw, ":") {
			fd, err := strconv.ParseInt(raw[1:], 10, 64)
			if err != nil {
				continue
			}
			add(sessions.ByFD(fd))
			continue
		}
		sessions.ForEach(func(s *Session) {
			if s.User.Login == raw {
				add(s)
			}
		})
	}
	return targets
}

// boundedField URL-decodes a protocol field and enforces a maximum
// decoded length. Fields within the bound pass through unchanged;
// oversized fields are truncated on the decoded form and re-encoded so
// percent-encoding stays valid for downstream consumers. Undecodable
// input falls back to raw truncation.
func boundedField(raw string, max int) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		if len(raw) > max {
			return raw[:max]
		}
		return raw
	}
	if len(decoded) <= max {
		return raw
	}
	encoded := url.QueryEscape(decoded[:max])
	return strings.ReplaceAll(encoded, "+", "%20")
}
