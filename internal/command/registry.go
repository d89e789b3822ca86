package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps command names and aliases to commands.
// A later registration of an existing key replaces the earlier binding.
type Registry struct {
	byKey map[string]Command
	mu    sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]Command),
	}
}

// Register binds the command's name and aliases, lower-cased.
func (r *Registry) Register(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("cannot register nil command")
	}
	meta := cmd.Meta()
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	keys := []string{name}
	for _, alias := range meta.Aliases {
		if a := strings.ToLower(strings.TrimSpace(alias)); a != "" {
			keys = append(keys, a)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if prev, ok := r.byKey[key]; ok && prev != cmd {
			log.Warn().
				Str("key", key).
				Str("previous", prev.Meta().Name).
				Str("command", meta.Name).
				Msg("Command key already registered, overwriting")
		}
		r.byKey[key] = cmd
	}
	return nil
}

// MustRegister registers every command and panics on error.
func (r *Registry) MustRegister(cmds ...Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Get looks a command up by name or alias, case-insensitively.
func (r *Registry) Get(key string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byKey[strings.ToLower(key)]
	return cmd, ok
}

// List returns each distinct command once, sorted by category then name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	seen := make(map[Command]struct{}, len(r.byKey))
	cmds := make([]Command, 0, len(r.byKey))
	for _, cmd := range r.byKey {
		if _, ok := seen[cmd]; ok {
			continue
		}
		seen[cmd] = struct{}{}
		cmds = append(cmds, cmd)
	}
	r.mu.RUnlock()

	sort.Slice(cmds, func(i, j int) bool {
		a, b := cmds[i].Meta(), cmds[j].Meta()
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})
	return cmds
}

// Names returns every registered key, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of distinct commands.
func (r *Registry) Count() int {
	return len(r.List())
}
