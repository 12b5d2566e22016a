package workspace

import (
	"sync"
	"time"
)

// Registry keeps one workspace per signed-in user.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, items: make(map[string]*Workspace)}
}

// Get returns the user's workspace, creating it on first use. Fetching
// counts as activity so a concurrent Sweep cannot drop it.
func (r *Registry) Get(user string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.items[user]
	if !ok {
		ws = New(user, r.deps)
		r.items[user] = ws
	}
	ws.touch()
	return ws
}

// Sweep drops workspaces idle for longer than idle and not running anything.
// It returns how many were dropped.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []*Workspace

	r.mu.Lock()
	for user, ws := range r.items {
		if ws.LastSeen().Before(cutoff) && !ws.Busy() {
			stale = append(stale, ws)
			delete(r.items, user)
		}
	}
	r.mu.Unlock()

	for _, ws := range stale {
		ws.Close()
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
