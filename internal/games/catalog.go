package games

import (
	"fmt"
	"sort"
)

// Factory builds a fresh game bound to roomID.
type Factory func(roomID string, log Appender) Game

// Entry describes one playable game type.
type Entry struct {
	Type     string     `json:"game_type"`
	Metadata Metadata   `json:"metadata"`
	Spec     PlayerSpec `json:"players"`
	New      Factory    `json:"-"`
}

// Catalog maps game types to their factories.
type Catalog struct {
	entries map[string]Entry
}

func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.entries[e.Type] = e
	}
	return c
}

func (c *Catalog) Lookup(gameType string) (Entry, bool) {
	e, ok := c.entries[gameType]
	return e, ok
}

// List returns every entry sorted by type.
func (c *Catalog) List() []Entry {
	list := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}

func (c *Catalog) New(gameType, roomID string, log Appender) (Game, error) {
	e, ok := c.entries[gameType]
	if !ok {
		return nil, fmt.Errorf("unsupported game type: %s", gameType)
	}
	return e.New(roomID, log), nil
}
