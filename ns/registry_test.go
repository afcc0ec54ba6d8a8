package ns

import (
	"errors"
	"fmt"
	"testing"
)

func TestDispatchUnknownOpcode(t *testing.T) {
	env, _ := newTestEnv()
	reg := mustRegistry(t, RegistryOptions{})
	s := newTestSession(t, 1)
	env.Sessions.Add(s)

	reg.Dispatch([]string{"frobnicate"}, s, env)
	if out := drainOutput(s); out != "rep 001 -- no such cmd\n" {
		t.Errorf("reply = %q, want rep 001", out)
	}
}

func TestDispatchStageGating(t *testing.T) {
	env, _ := newTestEnv()
	reg := mustRegistry(t, RegistryOptions{})

	// Protocol commands before authentication are forbidden.
	s := newTestSession(t, 1)
	env.Sessions.Add(s)
	reg.Dispatch([]string{"state", "away"}, s, env)
	if out := drainOutput(s); out != "rep 403 -- forbidden\n" {
		t.Errorf("reply = %q, want rep 403", out)
	}

	// Authentication commands after authentication get 008.
	env.Directory.(*MemoryDirectory).AddAccount("bob", "pw", "int")
	login(t, reg, env, s, "bob", "pw")
	reg.Dispatch([]string{"auth_ag", "user", "none"}, s, env)
	if out := drainOutput(s); out != "rep 008 -- agent already log\n" {
		t.Errorf("reply = %q, want rep 008", out)
	}
}

func TestDispatchArityMessages(t *testing.T) {
	env, dir := newTestEnv()
	dir.AddAccount("bob", "pw", "int")
	reg := mustRegistry(t, RegistryOptions{})
	s := newTestSession(t, 1)
	env.Sessions.Add(s)
	login(t, reg, env, s, "bob", "pw")

	tests := []struct {
		payload []string
		want    string
	}{
		{[]string{"state"}, "rep 003 -- cmd bad number of arguments 1 should be 2\n"},
		{[]string{"version", "extra"}, "rep 003 -- cmd bad number of arguments 2 should be 1\n"},
		{[]string{"msg_user", "bob"}, "rep 003 -- cmd bad number of arguments 2 should be at least 3\n"},
		{[]string{"ping", "1", "2"}, "rep 003 -- cmd bad number of arguments 3 should be between 1 and 2\n"},
	}
	for _, tc := range tests {
		reg.Dispatch(tc.payload, s, env)
		if out := drainOutput(s); out != tc.want {
			t.Errorf("Dispatch(%v) reply = %q, want %q", tc.payload, out, tc.want)
		}
	}
}

type panicCommand struct{}

func (panicCommand) MinArgs() int { return 1 }
func (panicCommand) MaxArgs() int { return -1 }
func (panicCommand) Type() CmdType { return TypeCommand }
func (panicCommand) CanExecute(*Session) bool { return true }
func (panicCommand) Execute([]string, *Session, *Env) error {
	panic("boom")
}

type failCommand struct{}

func (failCommand) MinArgs() int { return 1 }
func (failCommand) MaxArgs() int { return -1 }
func (failCommand) Type() CmdType { return TypeCommand }
func (failCommand) CanExecute(*Session) bool { return true }
func (failCommand) Execute([]string, *Session, *Env) error {
	return errors.New("storage gone")
}

func TestDispatchConfinesFailures(t *testing.T) {
	env, _ := newTestEnv()
	reg := &Registry{cmds: map[string]Command{
		"explode": panicCommand{},
		"fail":    failCommand{},
	}}
	s := newTestSession(t, 1)
	env.Sessions.Add(s)

	reg.Dispatch([]string{"explode"}, s, env)
	if out := drainOutput(s); out != "rep 500 -- internal error\n" {
		t.Errorf("panic reply = %q, want rep 500", out)
	}
	reg.Dispatch([]string{"fail"}, s, env)
	if out := drainOutput(s); out != "rep 500 -- internal error\n" {
		t.Errorf("error reply = %q, want rep 500", out)
	}
}

func TestAuthAgArityBounds(t *testing.T) {
	env, _ := newTestEnv()
	reg := mustRegistry(t, RegistryOptions{})

	for _, n := range []int{2, 3, 4} {
		s := newTestSession(t, int64(n))
		env.Sessions.Add(s)
		payload := []string{"auth_ag", "user", "none", "-"}[:n]
		reg.Dispatch(payload, s, env)
		if out := drainOutput(s); out != "rep 002 -- cmd end\n" {
			t.Errorf("length %d reply = %q, want acceptance", n, out)
		}
	}
	for _, payload := range [][]string{
		{"auth_ag"},
		{"auth_ag", "user", "none", "-", "extra"},
	} {
		s := newTestSession(t, int64(10+len(payload)))
		env.Sessions.Add(s)
		reg.Dispatch(payload, s, env)
		want := fmt.Sprintf("rep 003 -- cmd bad number of arguments %d should be between 2 and 4\n", len(payload))
		if out := drainOutput(s); out != want {
			t.Errorf("length %d reply = %q, want %q", len(payload), out, want)
		}
	}
}

func TestNestedDispatchArityWording(t *testing.T) {
	env, dir := newTestEnv()
	dir.AddAccount("bob", "pw", "int")
	reg := mustRegistry(t, RegistryOptions{})
	s := newTestSession(t, 1)
	env.Sessions.Add(s)
	login(t, reg, env, s, "bob", "pw")

	// The nested count excludes the wrapper opcode itself.
	reg.Dispatch([]string{"cmd", "state"}, s, env)
	if out := drainOutput(s); out != "rep 003 -- cmd bad number of arguments 1 should be 2\n" {
		t.Errorf("reply = %q, want the nested payload count", out)
	}
}

func TestBuildRegistryRejectsUnknownName(t *testing.T) {
	_, err := BuildRegistry(CommandTable{"x": "does_not_exist"}, RegistryOptions{})
	if err == nil {
		t.Fatal("expected an error for an unknown command name")
	}
}

func TestDefaultCommandTableComplete(t *testing.T) {
	reg := mustRegistry(t, RegistryOptions{})
	for _, op := range []string{
		"auth_ag", "user_log", "ext_user_log", "user_klog", "ext_user_klog",
		"cmd", "user_cmd", "state", "watch_log_user", "msg_user",
		"who", "list_users", "ping", "version",
	} {
		if _, ok := reg.Lookup(op); !ok {
			t.Errorf("opcode %q missing from default registry", op)
		}
	}
}
