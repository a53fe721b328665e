package core

// Slot names used by the engine. A cell can carry any number of named slots;
// these are the ones the engine itself installs.
const (
	// SlotPersist writes a field's text into the run's parameter set.
	SlotPersist = "persist"
	// SlotBroadcast fans an edit out to the other lines of the session.
	SlotBroadcast = "broadcast"
	// SlotDisplay mirrors parameter set values back into a line's fields.
	SlotDisplay = "display"
	// SlotExclusive enforces the fixed/shared mutual exclusion.
	SlotExclusive = "exclusive"
)

type cellSlot[T any] struct {
	name string
	fn   func(T)
}

// Cell is an observable scalar. Every Set notifies the subscribed slots in
// registration order, once each, whether or not the value changed.
type Cell[T any] struct {
	value T
	slots []cellSlot[T]
	muted map[string]int
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set stores v and notifies every unmuted slot.
func (c *Cell[T]) Set(v T) {
	c.value = v
	// Callbacks may add or remove slots; notify the set registered at entry.
	slots := make([]cellSlot[T], len(c.slots))
	copy(slots, c.slots)
	for _, s := range slots {
		if c.muted[s.name] > 0 {
			continue
		}
		s.fn(v)
	}
}

// SetSuppressing performs a single Set during which the named slots do not
// fire. The suppression ends when this call returns, so nested writes made by
// other slots during the assignment still see the slots muted.
func (c *Cell[T]) SetSuppressing(v T, slots ...string) {
	if len(slots) == 0 {
		c.Set(v)
		return
	}
	if c.muted == nil {
		c.muted = make(map[string]int, len(slots))
	}
	for _, name := range slots {
		c.muted[name]++
	}
	defer func() {
		for _, name := range slots {
			c.muted[name]--
			if c.muted[name] <= 0 {
				delete(c.muted, name)
			}
		}
	}()
	c.Set(v)
}

// Subscribe installs fn under name. An existing slot with the same name keeps
// its position and gets the new callback.
func (c *Cell[T]) Subscribe(name string, fn func(T)) {
	if fn == nil {
		return
	}
	for i := range c.slots {
		if c.slots[i].name == name {
			c.slots[i].fn = fn
			return
		}
	}
	c.slots = append(c.slots, cellSlot[T]{name: name, fn: fn})
}

// Unsubscribe removes the named slot and reports whether it existed.
func (c *Cell[T]) Unsubscribe(name string) bool {
	for i := range c.slots {
		if c.slots[i].name == name {
			c.slots = append(c.slots[:i], c.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribed reports whether a slot with the given name is installed.
func (c *Cell[T]) Subscribed(name string) bool {
	for _, s := range c.slots {
		if s.name == name {
			return true
		}
	}
	return false
}

// Muted reports whether the named slot is currently suppressed.
func (c *Cell[T]) Muted(name string) bool {
	return c.muted[name] > 0
}

// Slots returns the slot names in notification order.
func (c *Cell[T]) Slots() []string {
	out := make([]string, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.name
	}
	return out
}
