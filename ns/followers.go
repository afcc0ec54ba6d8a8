package ns

// FollowerRegistry maps a subject login to the ordered list of sessions
// that must be notified of that subject's state transitions. A
// subject's list survives the subject's own logout, so followers see
// the next login too. Subscribers are removed from every list when
// they disconnect.
//
// Mutated exclusively by the reactor loop goroutine.
type FollowerRegistry struct {
	m map[string][]*Session
}

func NewFollowerRegistry() *FollowerRegistry {
	return &FollowerRegistry{m: make(map[string][]*Session)}
}

// Add subscribes a session to a subject login. Duplicate subscriptions
// are suppressed; order of first subscription is preserved.
func (fr *FollowerRegistry) Add(login string, s *Session) {
	for _, cur := range fr.m[login] {
		if cur == s {
			return
		}
	}
	fr.m[login] = append(fr.m[login], s)
}

// FollowersOf returns the subscriber list for a subject login.
func (fr *FollowerRegistry) FollowersOf(login string) []*Session {
	return fr.m[login]
}

// RemoveSubscriber drops a session from every subject list it appears
// in. Called when the session disconnects.
func (fr *FollowerRegistry) RemoveSubscriber(s *Session) {
	for login, followers := range fr.m {
		for i, cur := range followers {
			if cur == s {
				fr.m[login] = append(followers[:i], followers[i+1:]...)
				break
			}
		}
	}
}

// SubjectCount returns how many subject logins currently have at least
// one follower.
func (fr *FollowerRegistry) SubjectCount() int {
	var n int
	for _, followers := range fr.m {
		if len(followers) > 0 {
			n++
		}
	}
	return n
}
