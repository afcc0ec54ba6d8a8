package ns

import (
	"fmt"
	"strings"
)

// wrapperCommand is the generic "user-land" indirection: a closed set of
// core commands reachable both as top-level opcodes and as sub-commands
// of cmd/user_cmd. The literal opcode used must match the session's
// auth channel; the remaining arguments are re-dispatched against the
// nested registry, which omits the wrapper itself.
type wrapperCommand struct {
	nested *Registry
}

func (c *wrapperCommand) MinArgs() int { return 2 }
func (c *wrapperCommand) MaxArgs() int { return -1 }
func (c *wrapperCommand) Type() CmdType { return TypeCommand }

func (c *wrapperCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (c *wrapperCommand) Execute(payload []string, s *Session, env *Env) error {
	if payload[0] != s.Channel().WrapperOpcode() {
		s.Reply(repForbidden, "forbidden")
		return nil
	}
	c.nested.Dispatch(payload[1:], s, env)
	return nil
}

// RelayStateEvent applies a liveness transition to a session and fans
// the event out to every follower of the session's login. The event
// opcode is relayed verbatim unless it is "state", in which case the
// bounded state value and its timestamp are rendered. Notification
// lines are only appended to in-memory output queues; transmission is
// left to the reactor.
func RelayStateEvent(eventOpcode, rawState string, s *Session, env *Env) {
	state := rawState
	if i := strings.IndexByte(state, ':'); i >= 0 {
		state = state[:i]
	}
	s.User.State = boundedField(state, 20)
	s.User.StateModifiedAt = env.now().Unix()

	if env.Sink != nil {
		env.Sink.OnUserStateChange(s.User.Login, s.User.State, eventOpcode)
	}

	followers := env.Followers.FollowersOf(s.User.Login)
	if len(followers) == 0 {
		return
	}

	event := eventOpcode
	if eventOpcode == "state" {
		event = fmt.Sprintf("state %s:%d", s.User.State, s.User.StateModifiedAt)
	}
	body := fmt.Sprintf("%s | %s\n", s.IdentityHeader(s.User.Group), event)
	for _, follower := range followers {
		follower.Send(follower.Channel().WrapperOpcode() + " " + body)
		env.Log.Debug("presence notification",
			"follower", follower.label(), "subject", s.label(), "state", s.User.State)
	}
}

// stateCommand updates the caller's liveness state and notifies its
// followers.
//
//	OpCode: state
//	Args  : 1. new state, optionally suffixed ":<timestamp>" (the
//	           client-sent timestamp is ignored)
type stateCommand struct{}

func (stateCommand) MinArgs() int { return 2 }
func (stateCommand) MaxArgs() int { return 2 }
func (stateCommand) Type() CmdType { return TypeCommand }

func (stateCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (stateCommand) Execute(payload []string, s *Session, env *Env) error {
	RelayStateEvent(payload[0], payload[1], s, env)
	env.Log.Debug("state changed", "client", s.label(), "state", s.User.State)
	return nil
}

// watchCommand subscribes the caller to state transitions of the listed
// logins. Connection-id references resolve to logins of authenticated
// sessions; logins without a registered account are silently dropped.
//
//	OpCode: watch_log_user
//	Args  : 1. login or comma/semicolon separated login list
type watchCommand struct{}

func (watchCommand) MinArgs() int { return 1 }
func (watchCommand) MaxArgs() int { return 2 }
func (watchCommand) Type() CmdType { return TypeCommand }

func (watchCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (watchCommand) Execute(payload []string, s *Session, env *Env) error {
	if len(payload) < 2 {
		return nil
	}
	logins := ParseTargetLogins(payload[1], env.Sessions)

	ctx, cancel := env.lookupCtx()
	defer cancel()
	kept := logins[:0]
	for _, login := range logins {
		exists, err := env.Directory.AccountExists(ctx, login)
		if err != nil {
			env.Log.Warn("directory lookup failed", "login", login, "error", err)
			exists = true
		}
		if exists {
			kept = append(kept, login)
		}
	}

	for _, login := range kept {
		env.Followers.Add(login, s)
	}
	env.Log.Debug("watch registered", "client", s.label(), "subjects", kept)
	return nil
}

// msgCommand sends a directed line to each resolved target session.
// Only currently connected sessions matter; there is no account check.
//
//	OpCode: msg_user
//	Args  : 1. login or connection-id list
//	        2. verb ("msg" for a user message, relayed verbatim otherwise)
//	        3..n verb arguments (the message text for "msg", URL encoded)
type msgCommand struct{}

func (msgCommand) MinArgs() int { return 3 }
func (msgCommand) MaxArgs() int { return -1 }
func (msgCommand) Type() CmdType { return TypeCommand }

func (msgCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (msgCommand) Execute(payload []string, s *Session, env *Env) error {
	targets := ParseTargetSessions(payload[1], env.Sessions)
	header := s.Channel().WrapperOpcode() + " " + s.IdentityHeader("ext")
	for _, target := range targets {
		var line string
		if strings.EqualFold(payload[2], "msg") && len(payload) > 3 {
			line = fmt.Sprintf("%s | msg %s\n", header, payload[3])
			env.Log.Debug("message sent", "from", s.label(), "to", target.label())
		} else {
			tail := ""
			if len(payload) > 3 {
				tail = " " + strings.Join(payload[3:], " ")
			}
			line = fmt.Sprintf("%s | %s%s\n", header, payload[2], tail)
		}
		target.Send(line)
	}
	return nil
}

// whoFormat renders one session in a who report.
const whoFormat = "%s | who %d %s %s %d %d %d %d %s %s %s %s:%d %s\n"

// whoCommand reports detailed information about connected sessions
// matching the target list.
//
//	OpCode: who
//	Args  : 1. login or connection-id list
type whoCommand struct{}

func (whoCommand) MinArgs() int { return 2 }
func (whoCommand) MaxArgs() int { return 2 }
func (whoCommand) Type() CmdType { return TypeCommand }

func (whoCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (whoCommand) Execute(payload []string, s *Session, env *Env) error {
	logins := ParseTargetLogins(payload[1], env.Sessions)
	wanted := make(map[string]bool, len(logins))
	for _, login := range logins {
		wanted[login] = true
	}
	now := env.now().Unix()
	header := s.Channel().WrapperOpcode() + " " + s.IdentityHeader(s.User.Group)
	env.Sessions.ForEach(func(target *Session) {
		if target.User.Login == "" || !wanted[target.User.Login] {
			return
		}
		s.Send(fmt.Sprintf(whoFormat,
			header,
			target.FD,
			target.User.Login,
			target.IP,
			target.User.LoginTime,
			now,
			target.User.TrustClient,
			target.User.TrustUser,
			target.User.OperatingSystem,
			target.User.Location,
			target.User.Group,
			target.User.State,
			target.User.StateModifiedAt,
			target.User.ClientName))
	})
	s.Send(fmt.Sprintf("%s | who rep 002 -- cmd end\n", header))
	return nil
}

// listUsersFormat renders one session in a list_users dump.
const listUsersFormat = "%d %s %s %d %d %d %d %s %s %s %s:%d %s\n"

// listUsersCommand dumps every authenticated session, optionally
// filtered by a login/connection-id list.
//
//	OpCode: list_users
//	Args  : 1. (optional) login or connection-id list
type listUsersCommand struct{}

func (listUsersCommand) MinArgs() int { return 1 }
func (listUsersCommand) MaxArgs() int { return 2 }
func (listUsersCommand) Type() CmdType { return TypeCommand }

func (listUsersCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (listUsersCommand) Execute(payload []string, s *Session, env *Env) error {
	var wanted map[string]bool
	if len(payload) > 1 {
		wanted = make(map[string]bool)
		for _, login := range ParseTargetLogins(payload[1], env.Sessions) {
			wanted[login] = true
		}
	}
	env.Sessions.ForEach(func(target *Session) {
		if target.User.Login == "" {
			return
		}
		if wanted != nil && !wanted[target.User.Login] {
			return
		}
		s.Send(fmt.Sprintf(listUsersFormat,
			target.FD,
			target.User.Login,
			target.IP,
			target.User.LoginTime,
			target.User.StateModifiedAt,
			target.User.TrustClient,
			target.User.TrustUser,
			target.User.OperatingSystem,
			target.User.Location,
			target.User.Group,
			target.User.State,
			target.User.StateModifiedAt,
			target.User.ClientName))
	})
	s.Reply(repCmdEnd, "cmd end")
	return nil
}

// pingCommand accepts client-sent ping lines, including answers to the
// server keepalive, as a no-op.
//
//	OpCode: ping
type pingCommand struct{}

func (pingCommand) MinArgs() int { return 1 }
func (pingCommand) MaxArgs() int { return 2 }
func (pingCommand) Type() CmdType { return TypeCommand }

func (pingCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (pingCommand) Execute([]string, *Session, *Env) error { return nil }

// versionCommand reports the server identity and build.
//
//	OpCode: version
type versionCommand struct{}

func (versionCommand) MinArgs() int { return 1 }
func (versionCommand) MaxArgs() int { return 1 }
func (versionCommand) Type() CmdType { return TypeCommand }

func (versionCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthenticated
}

func (versionCommand) Execute(payload []string, s *Session, env *Env) error {
	s.Send(fmt.Sprintf("%s %s %s\n", ServerName, Version, BuildDate))
	return nil
}
