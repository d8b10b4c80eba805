package chat

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry indexes registered sessions by display name.
// All methods are safe for concurrent use. Mutations are atomic per name
// and never take a registry-wide lock.
type Registry struct {
	sessions sync.Map // name → *Session
	count    atomic.Int64
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register maps name to s if no session currently holds name.
//
// Postcondition: Returns true if the mapping was inserted; false leaves the registry unchanged.
func (r *Registry) Register(name string, s *Session) bool {
	if _, loaded := r.sessions.LoadOrStore(name, s); loaded {
		return false
	}
	r.count.Add(1)
	return true
}

// Unregister removes name only while it still maps to s, so a stale cleanup
// cannot evict a session that has since claimed the name.
//
// Postcondition: Returns true if a mapping was removed.
func (r *Registry) Unregister(name string, s *Session) bool {
	if !r.sessions.CompareAndDelete(name, s) {
		return false
	}
	r.count.Add(-1)
	return true
}

// Lookup returns the session registered under name.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Lookup(name string) (*Session, bool) {
	v, ok := r.sessions.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Rename moves s from oldName to newName. The new name is claimed before the
// old one is released, so s is never unreachable; for the duration of the
// call it may be reachable under both.
//
// Precondition: s must be registered under oldName.
// Postcondition: On success s is registered only under newName and s.Name() == newName.
// On failure returns ErrNameInUse and nothing changes.
func (r *Registry) Rename(oldName, newName string, s *Session) error {
	if !r.Register(newName, s) {
		return fmt.Errorf("renaming %q to %q: %w", oldName, newName, ErrNameInUse)
	}
	r.Unregister(oldName, s)
	s.setName(newName)
	return nil
}

// BroadcastExcept sends line to every registered session other than exclude.
// Iteration is weakly consistent: sessions registered or removed during the
// call may or may not receive the line. A failed send is logged and skipped.
//
// Postcondition: Returns the number of sessions the line was delivered to.
func (r *Registry) BroadcastExcept(line string, exclude *Session) int {
	delivered := make(map[*Session]struct{})
	r.sessions.Range(func(key, value any) bool {
		s := value.(*Session)
		if s == exclude {
			return true
		}
		// A session mid-rename is briefly listed under two names.
		if _, seen := delivered[s]; seen {
			return true
		}
		if err := s.Send(line); err != nil {
			r.logger.Debug("broadcast delivery failed",
				zap.String("name", key.(string)),
				zap.String("session_id", s.ID()),
				zap.Error(err),
			)
			return true
		}
		delivered[s] = struct{}{}
		return true
	})
	return len(delivered)
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Names returns a sorted snapshot of registered names.
func (r *Registry) Names() []string {
	var names []string
	r.sessions.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	slices.Sort(names)
	return names
}
