package ns

// Authentication-agent commands: agent selection (auth_ag), the
// challenge-response login (user_log / ext_user_log) and the external
// ticket login (user_klog / ext_user_klog).

// maxLoginLen bounds the login field of a login attempt.
const maxLoginLen = 35

var knownAuthMechanisms = map[string]bool{
	"none": true,
	"md5":  true,
}

// authAgCommand selects the authentication agent and mechanism.
//
//	OpCode: auth_ag
//	Args  : 1. agent: "user" (internal) or "ext_user" (external)
//	        2. (optional) mechanism, default "none"
//	        3. (optional) ignored, kept for wire compatibility
type authAgCommand struct {
	disabled map[string]bool
}

func (c *authAgCommand) MinArgs() int { return 2 }
func (c *authAgCommand) MaxArgs() int { return 4 }
func (c *authAgCommand) Type() CmdType { return TypeAuthentication }

func (c *authAgCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageNotAuthenticated
}

func (c *authAgCommand) Execute(payload []string, s *Session, env *Env) error {
	mechanism := "none"
	if len(payload) > 2 {
		mechanism = payload[2]
	}

	var channel Channel
	switch payload[1] {
	case "user":
		channel = ChannelInternal
	case "ext_user":
		channel = ChannelExternal
	default:
		s.Reply(repNoSuchAgent, "no such agent")
		return nil
	}

	if !knownAuthMechanisms[mechanism] {
		s.Reply(repNoSuchAgent, "no such agent")
		return nil
	}
	if c.disabled[mechanism] {
		s.Reply(repNoSuchAuth, "no such auth")
		return nil
	}

	s.SetChannel(channel)
	s.Advance(StageAuthRequested)
	s.Reply(repCmdEnd, "cmd end")
	return nil
}

// userLogCommand authenticates with a login and a challenge-response
// hash verified against the directory.
//
//	OpCode: user_log | ext_user_log
//	Args  : 1. login
//	        2. md5("<session hash>-<client ip>/<client port><password>")
//	        3. location, URL encoded (max 64 chars decoded)
//	        4. client name, URL encoded (max 64 chars decoded)
type userLogCommand struct{}

func (userLogCommand) MinArgs() int { return 5 }
func (userLogCommand) MaxArgs() int { return 5 }
func (userLogCommand) Type() CmdType { return TypeAuthentication }

func (userLogCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthRequested
}

func (userLogCommand) Execute(payload []string, s *Session, env *Env) error {
	expected := "user_log"
	if s.Channel() == ChannelExternal {
		expected = "ext_user_log"
	}
	if payload[0] != expected {
		s.Reply(repForbidden, "forbidden")
		return nil
	}

	login := payload[1]
	if len(login) > maxLoginLen {
		login = login[:maxLoginLen]
	}

	ctx, cancel := env.lookupCtx()
	defer cancel()
	group, ok, err := env.Directory.VerifyInternal(ctx, login, payload[2], s.Hash, s.IP, s.Port)
	if err != nil {
		env.Log.Warn("directory lookup failed", "login", login, "error", err)
		ok = false
	}
	if !ok {
		s.Reply(repIdentFailed, s.Channel().FailText()+" identification fail")
		return nil
	}

	if env.Sessions.CountLogin(login) >= env.Limits.MaxSessionsPerLogin {
		s.Reply(repTooManySessions, "too many sessions opened")
		s.MarkDisconnect(ReasonTooManySessions)
		return nil
	}

	s.User.Login = login
	s.User.Group = group
	s.User.LoginTime = env.now().Unix()
	s.User.Location = boundedField(payload[3], 64)
	s.User.ClientName = boundedField(payload[4], 64)
	s.Advance(StageAuthenticated)
	s.Reply(repCmdEnd, "cmd end")
	env.Log.Debug("client authenticated", "client", s.label())

	RelayStateEvent("login", "connection", s, env)
	return nil
}

// userKlogCommand authenticates with an opaque external ticket verified
// by the directory, which resolves the principal login.
//
//	OpCode: user_klog | ext_user_klog
//	Args  : 1. opaque ticket
//	        2. operating system, URL encoded (max 64 chars decoded)
//	        3. location, URL encoded (max 64 chars decoded)
//	        4. group, URL encoded (max 64 chars decoded; defaults to
//	           "int"/"ext" by channel when empty)
//	        5. client name, URL encoded (max 64 chars decoded)
type userKlogCommand struct{}

func (userKlogCommand) MinArgs() int { return 6 }
func (userKlogCommand) MaxArgs() int { return 6 }
func (userKlogCommand) Type() CmdType { return TypeAuthentication }

func (userKlogCommand) CanExecute(s *Session) bool {
	return s.Stage() == StageAuthRequested
}

func (userKlogCommand) Execute(payload []string, s *Session, env *Env) error {
	expected := "user_klog"
	if s.Channel() == ChannelExternal {
		expected = "ext_user_klog"
	}
	if payload[0] != expected {
		s.Reply(repForbidden, "forbidden")
		return nil
	}

	ctx, cancel := env.lookupCtx()
	defer cancel()

	identFail := func() {
		s.Reply(repIdentFailed, s.Channel().FailText()+" identification fail")
	}

	login, ok, err := env.Directory.VerifyTicket(ctx, payload[1])
	if err != nil {
		env.Log.Warn("ticket verification failed", "error", err)
		ok = false
	}
	if !ok {
		identFail()
		return nil
	}
	exists, err := env.Directory.AccountExists(ctx, login)
	if err != nil {
		env.Log.Warn("directory lookup failed", "login", login, "error", err)
		exists = false
	}
	if !exists {
		identFail()
		return nil
	}

	if env.Sessions.CountLogin(login) >= env.Limits.MaxSessionsPerLogin {
		s.Reply(repTooManySessions, "too many sessions opened")
		s.MarkDisconnect(ReasonTooManySessions)
		return nil
	}

	s.User.Login = login
	s.User.LoginTime = env.now().Unix()
	s.User.OperatingSystem = boundedField(payload[2], 64)
	s.User.Location = boundedField(payload[3], 64)
	if group := boundedField(payload[4], 64); group != "" {
		s.User.Group = group
	} else if s.Channel() == ChannelExternal {
		s.User.Group = "ext"
	} else {
		s.User.Group = "int"
	}
	s.User.ClientName = boundedField(payload[5], 64)
	s.Advance(StageAuthenticated)
	s.Reply(repCmdEnd, "cmd end")
	env.Log.Debug("client authenticated", "client", s.label())

	RelayStateEvent("login", "connection", s, env)
	return nil
}
