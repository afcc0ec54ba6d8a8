package ns

import (
	"context"
	"log/slog"
	"time"
)

// Protocol reply codes. Replies always use the literal form
// "rep <code> -- <message>".
const (
	repNoSuchCmd       = "001"
	repCmdEnd          = "002"
	repBadArgs         = "003"
	repNoSuchAgent     = "004"
	repNoSuchAuth      = "005"
	repAlreadyLogged   = "008"
	repIdentFailed     = "033"
	repForbidden       = "403"
	repInternalError   = "500"
	repTooManySessions = "737"
)

// CmdType distinguishes authentication-agent commands from ordinary
// protocol commands; it selects the reply sent when the stage predicate
// fails (008 vs 403).
type CmdType int

const (
	TypeAuthentication CmdType = iota
	TypeCommand
)

// Command is a protocol command handler bound to an opcode. The first
// entry of the payload passed to Execute is always the opcode itself,
// and the opcode counts toward the declared argument bounds.
type Command interface {
	// MinArgs is the minimal accepted payload length.
	MinArgs() int
	// MaxArgs is the maximal accepted payload length; -1 means unbounded.
	MaxArgs() int
	Type() CmdType
	// CanExecute is the stage-eligibility predicate.
	CanExecute(s *Session) bool
	// Execute runs the command. Protocol-level failures are reported to
	// the client as reply lines; a returned error is an internal fault
	// that the dispatcher converts into "rep 500".
	Execute(payload []string, s *Session, env *Env) error
}

// Limits carries the configured resource bounds commands consult.
type Limits struct {
	MaxSessionsPerLogin int
}

// Env is the loop-owned state handed to command handlers: the connected
// session set, the follower registry, and the external collaborators.
// It is passed by capability rather than reached through globals so the
// single-writer concurrency invariant stays explicit.
type Env struct {
	Sessions  *SessionSet
	Followers *FollowerRegistry
	Directory Directory
	Sink      StateSink
	Limits    Limits
	Log       *slog.Logger
	Now       func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lookupCtx bounds synchronous directory lookups so a stalled account
// store cannot wedge the reactor loop.
func (e *Env) lookupCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// SessionSet is the collection of currently connected sessions, mutated
// exclusively by the reactor loop.
type SessionSet struct {
	byFD  map[int64]*Session
	order []*Session
}

func NewSessionSet() *SessionSet {
	return &SessionSet{byFD: make(map[int64]*Session)}
}

func (ss *SessionSet) Add(s *Session) {
	if _, dup := ss.byFD[s.FD]; dup {
		return
	}
	ss.byFD[s.FD] = s
	ss.order = append(ss.order, s)
}

func (ss *SessionSet) Remove(s *Session) {
	if _, ok := ss.byFD[s.FD]; !ok {
		return
	}
	delete(ss.byFD, s.FD)
	for i, cur := range ss.order {
		if cur == s {
			ss.order = append(ss.order[:i], ss.order[i+1:]...)
			break
		}
	}
}

func (ss *SessionSet) Contains(s *Session) bool {
	cur, ok := ss.byFD[s.FD]
	return ok && cur == s
}

func (ss *SessionSet) Len() int { return len(ss.order) }

// ByFD resolves a connection-id reference to its session.
func (ss *SessionSet) ByFD(fd int64) *Session { return ss.byFD[fd] }

// ForEach visits sessions in connection order.
func (ss *SessionSet) ForEach(fn func(*Session)) {
	for _, s := range append([]*Session(nil), ss.order...) {
		fn(s)
	}
}

// CountLogin returns how many connected sessions are authenticated with
// the given login.
func (ss *SessionSet) CountLogin(login string) int {
	var n int
	for _, s := range ss.order {
		if s.User.Login != "" && s.User.Login == login {
			n++
		}
	}
	return n
}
