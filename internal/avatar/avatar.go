// Package avatar defines the visual collaborator driven by peer sessions:
// one avatar per remote peer, posed by telemetry and animated by events.
package avatar

import (
	"errors"
	"sync"
)

// ErrDuplicateLocal reports a second locally tracked avatar. Only one may
// exist per client.
var ErrDuplicateLocal = errors.New("a local avatar is already tracked")

// Vec3 is a position or an Euler rotation.
type Vec3 struct {
	X, Y, Z float64
}

// Avatar is the visual handle for one peer.
type Avatar interface {
	// SetPose moves the avatar. Rotation is in radians.
	SetPose(position, rotation Vec3)
	// Dispatch delivers a named event such as "talk".
	Dispatch(name string)
	// Remove detaches the avatar. Further calls are ignored.
	Remove()
}

// Factory creates avatars for remote peers.
type Factory interface {
	Create(id string) Avatar
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(id string) Avatar

func (f FactoryFunc) Create(id string) Avatar { return f(id) }

// LocalTracker guards the single locally tracked avatar.
type LocalTracker struct {
	mu    sync.Mutex
	local Avatar
}

// Track registers a as the local avatar.
func (t *LocalTracker) Track(a Avatar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.local != nil {
		return ErrDuplicateLocal
	}
	t.local = a
	return nil
}

// Local returns the tracked avatar, or nil.
func (t *LocalTracker) Local() Avatar {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

// Release forgets the local avatar so a new one may be tracked.
func (t *LocalTracker) Release() {
	t.mu.Lock()
	t.local = nil
	t.mu.Unlock()
}
