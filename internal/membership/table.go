// Package membership keeps, per channel, the ordered set of display names
// currently joined to it.
package membership

import (
	"slices"
	"sync"
)

// Update is the state of one channel after a mutation.
type Update struct {
	Channel string
	Members []string
}

type nameSet struct {
	names []string
	index map[string]struct{}
}

func (s *nameSet) add(name string) {
	if _, ok := s.index[name]; ok {
		return
	}
	s.index[name] = struct{}{}
	s.names = append(s.names, name)
}

func (s *nameSet) remove(name string) bool {
	if _, ok := s.index[name]; !ok {
		return false
	}
	delete(s.index, name)
	s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
	return true
}

func (s *nameSet) has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Table maps channel ids to member sets. Channels are created on first join
// and kept, possibly empty, for the life of the process; an absent channel
// reads the same as an empty one.
type Table struct {
	mu       sync.RWMutex
	channels map[string]*nameSet
	order    []string
}

func NewTable() *Table {
	return &Table{
		channels: make(map[string]*nameSet),
	}
}

// Join adds name to the channel and returns the resulting members. Joining
// twice leaves the set unchanged.
func (t *Table) Join(channelID, name string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.ensure(channelID)
	set.add(name)
	return slices.Clone(set.names)
}

// Touch creates the channel entry without adding anyone.
func (t *Table) Touch(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.ensure(channelID).names)
}

func (t *Table) ensure(channelID string) *nameSet {
	set, ok := t.channels[channelID]
	if !ok {
		set = &nameSet{names: []string{}, index: make(map[string]struct{})}
		t.channels[channelID] = set
		t.order = append(t.order, channelID)
	}
	return set
}

// Leave removes name from the channel. Unknown channels and names are not
// an error; the bool reports whether anything was removed.
func (t *Table) Leave(channelID, name string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.channels[channelID]
	if !ok {
		return []string{}, false
	}
	removed := set.remove(name)
	return slices.Clone(set.names), removed
}

func (t *Table) MembersOf(channelID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.channels[channelID]
	if !ok {
		return []string{}
	}
	return slices.Clone(set.names)
}

// RemoveEverywhere drops name from every known channel, in channel creation
// order, and returns one Update per channel that contained it.
func (t *Table) RemoveEverywhere(name string) []Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	var updates []Update
	for _, channelID := range t.order {
		set := t.channels[channelID]
		if !set.has(name) {
			continue
		}
		set.remove(name)
		updates = append(updates, Update{Channel: channelID, Members: slices.Clone(set.names)})
	}
	return updates
}

func (t *Table) Channels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}
