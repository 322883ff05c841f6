package rdthemis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/serious-company/rd-themis/audit"
	"github.com/serious-company/rd-themis/blocking"
)

// CommandInfo describes a registered command.
type CommandInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Alias    string   `json:"alias" yaml:"alias"`
	Arity    int      `json:"arity" yaml:"arity"`
	Flags    []string `json:"flags" yaml:"flags"`
	FirstKey int      `json:"first_key" yaml:"first_key"`
	LastKey  int      `json:"last_key" yaml:"last_key"`
	KeyStep  int      `json:"key_step" yaml:"key_step"`
	Async    bool     `json:"async" yaml:"async"`
}

type command struct {
	CommandInfo

	write   bool
	action  string
	failure string
	run     func(s *Service, ctx context.Context, in *blocking.Inputs) blocking.Result
}

var commandFlags = []string{"no-monitor", "fast"}

func newCommand(name, alias string, write, async bool, action, failure string,
	run func(*Service, context.Context, *blocking.Inputs) blocking.Result) *command {
	arity := 3
	if write {
		arity = 4
	}
	return &command{
		CommandInfo: CommandInfo{
			Name:     name,
			Alias:    alias,
			Arity:    arity,
			Flags:    commandFlags,
			FirstKey: 1,
			LastKey:  1,
			KeyStep:  1,
			Async:    async,
		},
		write:   write,
		action:  action,
		failure: failure,
		run:     run,
	}
}

var commandTable = []*command{
	newCommand("rd_themis.cset", "cell-set", true, false, audit.ActionCellEncrypt, "ERR secure seal encryption failed", runCellSet),
	newCommand("rd_themis.cget", "cell-get", false, false, audit.ActionCellDecrypt, "ERR secure seal decryption failed", runCellGet),
	newCommand("rd_themis.csetbl", "cell-set-async", true, true, audit.ActionCellEncrypt, "ERR secure seal encryption failed", runCellSet),
	newCommand("rd_themis.cgetbl", "cell-get-async", false, true, audit.ActionCellDecrypt, "ERR secure seal decryption failed", runCellGet),
	newCommand("rd_themis.msset", "message-set", true, false, audit.ActionMessageEncrypt, "ERR secure message encryption failed", runMessageSet),
	newCommand("rd_themis.msget", "message-get", false, false, audit.ActionMessageDecrypt, "ERR secure message decryption failed", runMessageGet),
	newCommand("rd_themis.mssetbl", "message-set-async", true, true, audit.ActionMessageEncrypt, "ERR secure message encryption failed", runMessageSet),
	newCommand("rd_themis.msgetbl", "message-get-async", false, true, audit.ActionMessageDecrypt, "ERR secure message decryption failed", runMessageGet),
}

var commandIndex = func() map[string]*command {
	index := make(map[string]*command, 2*len(commandTable))
	for _, cmd := range commandTable {
		index[cmd.Name] = cmd
		index[cmd.Alias] = cmd
	}
	return index
}()

func lookupCommand(name string) (*command, bool) {
	cmd, ok := commandIndex[strings.ToLower(name)]
	return cmd, ok
}

// commandError carries the reply text of a rejected command line.
type commandError struct {
	kind error
	text string
}

func (e *commandError) Error() string { return e.text }
func (e *commandError) Unwrap() error { return e.kind }

// resolveCommand finds the command named by argv[0] and checks its arity.
// Errors wrap ErrUnknownCommand or ErrArity.
func resolveCommand(argv [][]byte) (*command, error) {
	if len(argv) == 0 {
		return nil, &commandError{kind: ErrUnknownCommand, text: "ERR empty command"}
	}

	cmd, ok := lookupCommand(string(argv[0]))
	if !ok {
		return nil, &commandError{kind: ErrUnknownCommand, text: fmt.Sprintf("ERR unknown command '%s'", argv[0])}
	}
	if len(argv) != cmd.Arity {
		return nil, &commandError{kind: ErrArity, text: fmt.Sprintf("ERR wrong number of arguments for '%s' command", cmd.Name)}
	}
	return cmd, nil
}

// Commands lists the registered commands in registration order.
func Commands() []CommandInfo {
	infos := make([]CommandInfo, 0, len(commandTable))
	for _, cmd := range commandTable {
		info := cmd.CommandInfo
		info.Flags = append([]string(nil), cmd.Flags...)
		infos = append(infos, info)
	}
	return infos
}

func runCellSet(s *Service, ctx context.Context, in *blocking.Inputs) blocking.Result {
	if err := s.CellEncrypt(ctx, in.Key, in.SecretBytes(), in.Message); err != nil {
		return blocking.Failed(err)
	}
	return blocking.OK(nil)
}

func runCellGet(s *Service, ctx context.Context, in *blocking.Inputs) blocking.Result {
	return getResult(s.CellDecrypt(ctx, in.Key, in.SecretBytes()))
}

func runMessageSet(s *Service, ctx context.Context, in *blocking.Inputs) blocking.Result {
	if err := s.MessageEncrypt(ctx, in.Key, in.SecretBytes(), in.Message); err != nil {
		return blocking.Failed(err)
	}
	return blocking.OK(nil)
}

func runMessageGet(s *Service, ctx context.Context, in *blocking.Inputs) blocking.Result {
	return getResult(s.MessageDecrypt(ctx, in.Key, in.SecretBytes()))
}

func getResult(plaintext []byte, err error) blocking.Result {
	switch {
	case err == nil:
		return blocking.OK(plaintext)
	case errors.Is(err, ErrNotFound):
		return blocking.Result{Status: blocking.StatusNotFound, Err: err}
	case errors.Is(err, ErrWrongType):
		return blocking.Result{Status: blocking.StatusWrongType, Err: err}
	default:
		return blocking.Failed(err)
	}
}

// reply formats a result. The payload is copied so the result can be released.
func (c *command) reply(res *blocking.Result) Reply {
	switch res.Status {
	case blocking.StatusOK:
		if c.write {
			return okReply()
		}
		return bulkReply(res.Payload)
	case blocking.StatusNotFound:
		return integerReply(0)
	case blocking.StatusWrongType:
		return wrongTypeReply()
	default:
		return errorReply("%s", c.failure)
	}
}
