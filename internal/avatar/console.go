package avatar

import (
	"log/slog"
	"sync"
	"time"
)

// Console is a headless avatar that records its pose and the events it
// receives, for terminal front ends.
type Console struct {
	ID string

	mu       sync.Mutex
	position Vec3
	rotation Vec3
	events   map[string]int
	lastTalk time.Time
	removed  bool
	notify   func(id, event string)
	logger   *slog.Logger
}

// Snapshot is a point-in-time copy of a Console.
type Snapshot struct {
	ID       string
	Position Vec3
	Rotation Vec3
	Events   map[string]int
	LastTalk time.Time
	Removed  bool
}

// NewConsole returns a console avatar. notify, if set, is called for every
// dispatched event.
func NewConsole(id string, notify func(id, event string), logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		ID:     id,
		events: make(map[string]int),
		notify: notify,
		logger: logger,
	}
}

func (c *Console) SetPose(position, rotation Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return
	}
	c.position, c.rotation = position, rotation
}

func (c *Console) Dispatch(name string) {
	c.mu.Lock()
	if c.removed {
		c.mu.Unlock()
		return
	}
	c.events[name]++
	if name == "talk" {
		c.lastTalk = time.Now()
	}
	notify := c.notify
	c.mu.Unlock()

	c.logger.Debug("avatar event", "avatar", c.ID, "event", name)
	if notify != nil {
		notify(c.ID, name)
	}
}

func (c *Console) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return
	}
	c.removed = true
	c.logger.Debug("avatar removed", "avatar", c.ID)
}

// Snapshot copies the avatar's current state.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make(map[string]int, len(c.events))
	for k, v := range c.events {
		events[k] = v
	}
	return Snapshot{
		ID:       c.ID,
		Position: c.position,
		Rotation: c.rotation,
		Events:   events,
		LastTalk: c.lastTalk,
		Removed:  c.removed,
	}
}

// ConsoleFactory creates Console avatars and remembers them by id.
type ConsoleFactory struct {
	Notify func(id, event string)
	Logger *slog.Logger

	mu      sync.Mutex
	avatars map[string]*Console
}

func (f *ConsoleFactory) Create(id string) Avatar {
	c := NewConsole(id, f.Notify, f.Logger)
	f.mu.Lock()
	if f.avatars == nil {
		f.avatars = make(map[string]*Console)
	}
	f.avatars[id] = c
	f.mu.Unlock()
	return c
}

// Get returns the most recent avatar created for id.
func (f *ConsoleFactory) Get(id string) (*Console, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.avatars[id]
	return c, ok
}
