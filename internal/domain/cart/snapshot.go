package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
)

// SnapshotVersion is written into every encoded snapshot.
const SnapshotVersion = 1

// Snapshot holds the lines of every owner that has used one storage key.
type Snapshot map[string][]Line

// Cart returns a copy of the owner's cart.
func (s Snapshot) Cart(ownerID string) *Cart {
	return New(ownerID, s[ownerID])
}

// Put replaces the owner's lines; an empty cart removes the owner entry.
func (s Snapshot) Put(c *Cart) {
	if c.IsEmpty() {
		delete(s, c.OwnerID)
		return
	}
	s[c.OwnerID] = c.Clone().Lines
}

func (s Snapshot) Owners() []string {
	out := make([]string, 0, len(s))
	for owner := range s {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Apply runs fn against the owner's cart and merges the result back, leaving
// every other owner untouched. changed is false when fn returned ErrNoChange.
func (s Snapshot) Apply(ownerID string, fn func(*Cart) error) (_ *Cart, changed bool, err error) {
	if ownerID == "" {
		return nil, false, failure.ErrUnauthenticated
	}
	c := s.Cart(ownerID)
	if err := fn(c); err != nil {
		if errors.Is(err, ErrNoChange) {
			return s.Cart(ownerID), false, nil
		}
		return nil, false, err
	}
	s.Put(c)
	return c.Clone(), true, nil
}

type snapshotDoc struct {
	Version int               `json:"version"`
	Owners  map[string][]Line `json:"owners"`
}

// Encode serialises the whole snapshot.
func Encode(s Snapshot) ([]byte, error) {
	owners := make(map[string][]Line, len(s))
	for owner, lines := range s {
		if len(lines) > 0 {
			owners[owner] = lines
		}
	}
	return json.Marshal(snapshotDoc{Version: SnapshotVersion, Owners: owners})
}

// Decode parses a stored blob. Empty input is an empty snapshot. The older
// flat array of lines is accepted too. A malformed blob yields an empty
// snapshot together with a persistence_parse error so callers can log it and
// carry on; the next write replaces the corrupt blob.
func Decode(data []byte) (Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Snapshot{}, nil
	}
	if data[0] == '[' {
		var lines []Line
		if err := json.Unmarshal(data, &lines); err != nil {
			return Snapshot{}, failure.Wrap(failure.KindPersistenceParse, "cart snapshot is unreadable", err)
		}
		byOwner := map[string][]Line{}
		for _, l := range lines {
			if l.OwnerID != "" {
				byOwner[l.OwnerID] = append(byOwner[l.OwnerID], l)
			}
		}
		s := Snapshot{}
		for owner, ls := range byOwner {
			if c := New(owner, ls); !c.IsEmpty() {
				s[owner] = c.Lines
			}
		}
		return s, nil
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, failure.Wrap(failure.KindPersistenceParse, "cart snapshot is unreadable", err)
	}
	s := Snapshot{}
	for owner, lines := range doc.Owners {
		c := New(owner, stampOwner(owner, lines))
		if !c.IsEmpty() {
			s[owner] = c.Lines
		}
	}
	return s, nil
}

func stampOwner(owner string, lines []Line) []Line {
	for i := range lines {
		if lines[i].OwnerID == "" {
			lines[i].OwnerID = owner
		}
	}
	return lines
}
