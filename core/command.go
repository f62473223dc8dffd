package core

import (
	"sync"

	"piobroker/errcode"
)

// CommandHandler decodes its own arguments from args.
type CommandHandler func(args *[]byte) error

// Command is one entry of the message table. Responses (device to host)
// have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "block=%c slot=%c"
	Handler CommandHandler
}

// Signature is the dictionary key: name followed by its format.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry numbers messages in registration order.
type CommandRegistry struct {
	mu     sync.RWMutex
	byID   []*Command
	byName map[string]uint16
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]uint16)}
}

// Register adds a command, or returns the existing ID for a known name.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id
	}
	id := uint16(len(r.byID))
	r.byID = append(r.byID, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.byName[name] = id
	return id
}

// RegisterResponse adds a device-to-host message.
func (r *CommandRegistry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

func (r *CommandRegistry) LookupName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Commands returns every entry in ID order.
func (r *CommandRegistry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.byID))
	copy(out, r.byID)
	return out
}

// Dispatch runs the handler for id. Unknown IDs and responses are rejected.
func (r *CommandRegistry) Dispatch(id uint16, args *[]byte) error {
	cmd, ok := r.Lookup(id)
	if !ok || cmd.Handler == nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "dispatch", Msg: "unknown command " + utoa(uint32(id))}
	}
	return cmd.Handler(args)
}
