package ns

import (
	"fmt"
	"sort"
)

// Registry maps protocol opcodes to command handlers. It is built once
// at startup from a declarative opcode table and immutable thereafter.
type Registry struct {
	cmds map[string]Command
}

// Lookup returns the command bound to an opcode.
func (r *Registry) Lookup(opcode string) (Command, bool) {
	cmd, ok := r.cmds[opcode]
	return cmd, ok
}

// Opcodes returns the registered opcodes, sorted.
func (r *Registry) Opcodes() []string {
	ops := make([]string, 0, len(r.cmds))
	for op := range r.cmds {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Dispatch runs one parsed payload against the registry: opcode lookup,
// stage gating, argument-count validation, then execution. Execution
// faults (returned errors or panics) are confined to a "rep 500" reply;
// nothing a command does can abort the reactor loop.
func (r *Registry) Dispatch(payload []string, s *Session, env *Env) {
	if len(payload) == 0 {
		return
	}
	cmd, ok := r.cmds[payload[0]]
	if !ok {
		s.Reply(repNoSuchCmd, "no such cmd")
		return
	}
	if !cmd.CanExecute(s) {
		if cmd.Type() == TypeAuthentication {
			s.Reply(repAlreadyLogged, "agent already log")
		} else {
			s.Reply(repForbidden, "forbidden")
		}
		return
	}
	minArgs, maxArgs := cmd.MinArgs(), cmd.MaxArgs()
	if got := len(payload); got < minArgs || (maxArgs != -1 && got > maxArgs) {
		s.Reply(repBadArgs, arityMessage(got, minArgs, maxArgs))
		return
	}
	if err := execute(cmd, payload, s, env); err != nil {
		env.Log.Error("command execution failed",
			"opcode", payload[0], "client", s.label(), "error", err)
		s.Reply(repInternalError, "internal error")
	}
}

// arityMessage phrases the expected argument count as an exact value,
// a lower bound, or a bounded range.
func arityMessage(got, minArgs, maxArgs int) string {
	switch {
	case minArgs == maxArgs:
		return fmt.Sprintf("cmd bad number of arguments %d should be %d", got, minArgs)
	case maxArgs == -1:
		return fmt.Sprintf("cmd bad number of arguments %d should be at least %d", got, minArgs)
	default:
		return fmt.Sprintf("cmd bad number of arguments %d should be between %d and %d", got, minArgs, maxArgs)
	}
}

func execute(cmd Command, payload []string, s *Session, env *Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return cmd.Execute(payload, s, env)
}

// CommandTable is the declarative opcode table supplied by the
// configuration provider: opcode to builtin handler name.
type CommandTable map[string]string

// DefaultCommandTable enables the full builtin command set under their
// canonical opcodes.
func DefaultCommandTable() CommandTable {
	table := make(CommandTable)
	for _, op := range []string{
		"auth_ag",
		"user_log", "ext_user_log",
		"user_klog", "ext_user_klog",
		"cmd", "user_cmd",
		"state",
		"watch_log_user",
		"msg_user",
		"who",
		"list_users",
		"ping",
		"version",
	} {
		table[op] = op
	}
	return table
}

// RegistryOptions tune command construction.
type RegistryOptions struct {
	// DisabledAuthMechanisms lists auth_ag mechanisms answered with
	// "rep 005 -- no such auth".
	DisabledAuthMechanisms []string
}

// BuildRegistry constructs the top-level registry from a declarative
// table, plus the nested registry used by the generic cmd/user_cmd
// wrapper. The nested registry is built from the same table with the
// wrapper's own opcodes omitted, so the indirection cannot recurse.
func BuildRegistry(table CommandTable, opts RegistryOptions) (*Registry, error) {
	if len(table) == 0 {
		table = DefaultCommandTable()
	}

	nested := &Registry{cmds: make(map[string]Command)}
	top := &Registry{cmds: make(map[string]Command)}

	for opcode, name := range table {
		cmd, err := buildCommand(name, nested, opts)
		if err != nil {
			return nil, fmt.Errorf("opcode %q: %w", opcode, err)
		}
		top.cmds[opcode] = cmd
		if name != "cmd" && name != "user_cmd" {
			nestedCmd, err := buildCommand(name, nil, opts)
			if err != nil {
				return nil, fmt.Errorf("opcode %q: %w", opcode, err)
			}
			nested.cmds[opcode] = nestedCmd
		}
	}
	return top, nil
}

func buildCommand(name string, nested *Registry, opts RegistryOptions) (Command, error) {
	switch name {
	case "auth_ag":
		disabled := make(map[string]bool, len(opts.DisabledAuthMechanisms))
		for _, mech := range opts.DisabledAuthMechanisms {
			disabled[mech] = true
		}
		return &authAgCommand{disabled: disabled}, nil
	case "user_log", "ext_user_log":
		return &userLogCommand{}, nil
	case "user_klog", "ext_user_klog":
		return &userKlogCommand{}, nil
	case "cmd", "user_cmd":
		return &wrapperCommand{nested: nested}, nil
	case "state":
		return stateCommand{}, nil
	case "watch_log_user":
		return watchCommand{}, nil
	case "msg_user":
		return msgCommand{}, nil
	case "who":
		return whoCommand{}, nil
	case "list_users":
		return listUsersCommand{}, nil
	case "ping":
		return pingCommand{}, nil
	case "version":
		return versionCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command implementation %q", name)
	}
}
