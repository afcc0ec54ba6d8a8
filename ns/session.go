package ns

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"time"
)

// Stage is the point a session has reached in the authentication state
// machine. Transitions are strictly forward; a session never regresses.
type Stage int

const (
	StageNotAuthenticated Stage = iota
	StageAuthRequested
	StageAuthenticated
)

func (s Stage) String() string {
	switch s {
	case StageNotAuthenticated:
		return "not_authenticated"
	case StageAuthRequested:
		return "authentication_requested"
	case StageAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Channel records how a session chose to authenticate. It is fixed when
// the stage moves to StageAuthRequested and governs which opcode variant
// (cmd vs user_cmd) and trust-level pair apply thereafter.
type Channel int

const (
	ChannelInternal Channel = iota
	ChannelExternal
)

// WrapperOpcode returns the generic-command opcode this channel accepts.
func (c Channel) WrapperOpcode() string {
	if c == ChannelExternal {
		return "user_cmd"
	}
	return "cmd"
}

// FailText is the channel token used in "rep 033" identification
// failure replies.
func (c Channel) FailText() string {
	if c == ChannelExternal {
		return "ext user"
	}
	return "user"
}

// DisconnectReason tags why a session is being closed. It is recorded
// once and never cleared.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonNoActivity
	ReasonClientGoneAway
	ReasonTooManySessions
	ReasonApplicationRequested
	ReasonTooManyClients
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNoActivity:
		return "no_activity"
	case ReasonClientGoneAway:
		return "client_gone_away"
	case ReasonTooManySessions:
		return "too_many_sessions"
	case ReasonApplicationRequested:
		return "application_requested"
	case ReasonTooManyClients:
		return "too_many_clients"
	}
	return "none"
}

// UserInfo holds the attributes of the authenticated user bound to a
// session. Valid once the session reaches StageAuthenticated.
type UserInfo struct {
	Login           string
	Group           string
	Location        string
	ClientName      string
	OperatingSystem string
	LoginTime       int64
	State           string
	StateModifiedAt int64
	TrustClient     int
	TrustUser       int
}

// Session is the per-connection state: one per accepted socket, created
// on accept and destroyed on disconnect. All fields are owned by the
// reactor loop goroutine.
type Session struct {
	conn net.Conn

	// Network identity.
	FD   int64
	IP   string
	Port int
	Addr string

	// Hash is the random correlation hash generated at connection time,
	// used as the challenge nonce for password-based login.
	Hash string

	stage   Stage
	channel Channel

	User UserInfo

	Framer Framer

	reason DisconnectReason

	// writable marks the session as registered for write readiness.
	writable bool

	// lastActivity is the last observed socket activity (refreshed by the
	// reactor on every read). nextPing is the earliest instant a new
	// keepalive ping may be sent.
	lastActivity time.Time
	nextPing     time.Time
}

// NewSession builds a session for an accepted connection, deriving the
// correlation hash from the connection identity and the current time.
func NewSession(conn net.Conn, fd int64, now time.Time) *Session {
	addr := conn.RemoteAddr().String()
	ip, port := splitHostPort(addr)
	sum := md5.Sum([]byte(fmt.Sprintf("%s%d", addr, now.Unix())))
	return &Session{
		conn: conn,
		FD:   fd,
		IP:   ip,
		Port: port,
		Addr: addr,
		Hash: hex.EncodeToString(sum[:]),
		User: UserInfo{
			OperatingSystem: "~",
			State:           "connection",
			TrustClient:     1,
			TrustUser:       3,
			StateModifiedAt: now.Unix(),
		},
		lastActivity: now,
		nextPing:     now,
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var port int
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// Stage returns the session's current authentication stage.
func (s *Session) Stage() Stage { return s.stage }

// Channel returns the session's auth channel. Meaningful once the stage
// has moved past StageNotAuthenticated.
func (s *Session) Channel() Channel { return s.channel }

// Advance moves the stage forward. Backward transitions are ignored:
// the state machine is monotonic for the connection's lifetime.
func (s *Session) Advance(to Stage) {
	if to > s.stage {
		s.stage = to
	}
}

// SetChannel fixes the auth channel and the trust-level pair derived
// from it (internal: client=1/user=3, external: client=3/user=1).
func (s *Session) SetChannel(c Channel) {
	s.channel = c
	if c == ChannelExternal {
		s.User.TrustClient = 3
		s.User.TrustUser = 1
	} else {
		s.User.TrustClient = 1
		s.User.TrustUser = 3
	}
}

// MarkDisconnect records the disconnect reason. Only the first call
// takes effect.
func (s *Session) MarkDisconnect(reason DisconnectReason) {
	if s.reason == ReasonNone {
		s.reason = reason
	}
}

// DisconnectReason returns the recorded reason, or ReasonNone.
func (s *Session) DisconnectReason() DisconnectReason { return s.reason }

// Reply enqueues a protocol reply line ("rep <code> -- <message>").
func (s *Session) Reply(code, message string) {
	s.Framer.EnqueueChunks(fmt.Sprintf("rep %s -- %s\n", code, message))
}

// Send enqueues an arbitrary protocol line, chunked to the wire size.
func (s *Session) Send(line string) {
	s.Framer.EnqueueChunks(line)
}

// IdentityHeader renders the sender identity prefix used by relayed
// protocol lines: <fd>:user:<ct>/<ut>:<login>@<ip>:<os>:<location>:<group>.
func (s *Session) IdentityHeader(group string) string {
	return fmt.Sprintf("%d:user:%d/%d:%s@%s:%s:%s:%s",
		s.FD,
		s.User.TrustClient,
		s.User.TrustUser,
		s.User.Login,
		s.IP,
		s.User.OperatingSystem,
		s.User.Location,
		group)
}

// label is the session's log identity: address plus login when known.
func (s *Session) label() string {
	if s.User.Login == "" {
		return fmt.Sprintf("%s (<not_authenticated>)", s.Addr)
	}
	return fmt.Sprintf("%s (%s)", s.Addr, s.User.Login)
}
