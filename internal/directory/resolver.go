// Package directory reads the workspace user directory: single profiles
// (cached for the process lifetime) and the full member roster.
package directory

import (
	"context"
	"sync"

	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

// Resolver fetches user profiles and keeps every successful lookup.
// Failures are never cached, so the next call asks the directory again.
type Resolver struct {
	dir transport.Directory
	log logx.Logger

	mu    sync.RWMutex
	cache map[string]*transport.Profile
}

func NewResolver(dir transport.Directory, log logx.Logger) *Resolver {
	return &Resolver{
		dir:   dir,
		log:   log.With(logx.String("comp", "directory.resolver")),
		cache: make(map[string]*transport.Profile),
	}
}

// Profile returns the user's profile, or false when the lookup failed.
func (r *Resolver) Profile(ctx context.Context, userID string) (*transport.Profile, bool) {
	r.mu.RLock()
	p, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return p, true
	}

	p, err := r.dir.UserProfile(ctx, userID)
	if err != nil {
		r.log.Warn("profile lookup failed", logx.String("user", userID), logx.Err(err))
		return nil, false
	}
	if p == nil {
		r.log.Warn("profile lookup returned nothing", logx.String("user", userID))
		return nil, false
	}

	r.mu.Lock()
	// Concurrent misses for the same user keep the first stored profile.
	if prev, ok := r.cache[userID]; ok {
		p = prev
	} else {
		r.cache[userID] = p
	}
	r.mu.Unlock()
	return p, true
}

// Len reports the number of cached profiles.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
