// Package names keeps the bidirectional mapping between canonical identities
// and display names. The directory is a cache: it can be rebuilt from user
// rows and is persisted to a JSON file between restarts.
package names

import (
	"sort"
	"strings"
	"sync"

	"rpg-chat-bot/internal/model"
)

// Directory maps identities to display names and names back to identities.
// Name lookups are case-insensitive. The last writer wins on both sides.
type Directory struct {
	mu     sync.RWMutex
	byID   map[string]string
	byName map[string]string // lower-cased name -> id
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Set records name for id. Empty names are ignored.
func (d *Directory) Set(id, name string) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.setLocked(id, name)
}

func (d *Directory) setLocked(id, name string) {
	if old, ok := d.byID[id]; ok {
		if k := nameKey(old); d.byName[k] == id {
			delete(d.byName, k)
		}
	}

	key := nameKey(name)
	if owner, ok := d.byName[key]; ok && owner != id {
		// The name moves to id; the previous owner keeps its forward entry.
		delete(d.byName, key)
	}

	d.byID[id] = name
	d.byName[key] = id
}

// Get returns the display name of id.
func (d *Directory) Get(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.byID[id]
	return name, ok
}

// LookupByName returns the identity currently owning name.
func (d *Directory) LookupByName(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[nameKey(name)]
	return id, ok
}

// Has reports whether id has a name.
func (d *Directory) Has(id string) bool {
	_, ok := d.Get(id)
	return ok
}

// HasName reports whether name is owned by some identity.
func (d *Directory) HasName(name string) bool {
	_, ok := d.LookupByName(name)
	return ok
}

// Delete removes id and its reverse entry.
func (d *Directory) Delete(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)
	if k := nameKey(name); d.byName[k] == id {
		delete(d.byName, k)
	}
	return true
}

// DeleteByName removes the identity owning name.
func (d *Directory) DeleteByName(name string) bool {
	id, ok := d.LookupByName(name)
	if !ok {
		return false
	}
	return d.Delete(id)
}

// Entry is one id/name pair.
type Entry struct {
	ID   string
	Name string
}

// Search returns entries whose name contains query, case-insensitively,
// sorted by id.
func (d *Directory) Search(query string) []Entry {
	q := nameKey(query)

	d.mu.RLock()
	var out []Entry
	for id, name := range d.byID {
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, Entry{ID: id, Name: name})
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all identities, sorted.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Names returns all display names, sorted case-insensitively.
func (d *Directory) Names() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.byID))
	for _, name := range d.byID {
		out = append(out, name)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// Len returns the number of identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Snapshot returns a copy of the id -> name mapping.
func (d *Directory) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.byID))
	for id, name := range d.byID {
		out[id] = name
	}
	return out
}

// Replace discards the current content and loads entries in id order, so
// duplicate names resolve deterministically.
func (d *Directory) Replace(entries map[string]string) {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID = make(map[string]string, len(entries))
	d.byName = make(map[string]string, len(entries))
	for _, id := range ids {
		if name := strings.TrimSpace(entries[id]); id != "" && name != "" {
			d.setLocked(id, name)
		}
	}
}

// Normalize rewrites every id through strip and merges entries that collapse
// onto the same key. It returns the number of rewritten ids.
func (d *Directory) Normalize(strip func(string) string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	rewritten := 0
	for id, name := range d.byID {
		clean := strip(id)
		if clean == id {
			continue
		}
		rewritten++
		delete(d.byID, id)
		if k := nameKey(name); d.byName[k] == id {
			delete(d.byName, k)
		}
		if _, exists := d.byID[clean]; !exists {
			d.setLocked(clean, name)
		}
	}
	return rewritten
}

// Rebuild loads names from user rows, keeping entries the rows do not cover.
func (d *Directory) Rebuild(users []*model.User) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, u := range users {
		if u == nil || u.ID == "" || strings.TrimSpace(u.Name) == "" {
			continue
		}
		d.setLocked(u.ID, strings.TrimSpace(u.Name))
		n++
	}
	return n
}
