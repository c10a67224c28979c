package progress

import (
	"maps"

	"github.com/myrjola/turingtrial/internal/models"
)

// Tracker records which characters the player has engaged and holds open-ended gameplay flags.
// It is owned by the event loop.
type Tracker struct {
	engaged map[models.CharacterID]bool
	flags   map[string]bool
}

func NewTracker() *Tracker {
	t := &Tracker{engaged: nil, flags: nil}
	t.Reset()
	return t
}

// MarkEngaged records that the player has addressed the character. It never un-marks and reports whether this
// was the first time.
func (t *Tracker) MarkEngaged(id models.CharacterID) bool {
	if t.engaged[id] {
		return false
	}
	t.engaged[id] = true
	return true
}

func (t *Tracker) Engaged(id models.CharacterID) bool {
	return t.engaged[id]
}

// AllEngaged is true once every character of the fixed set has been engaged.
func (t *Tracker) AllEngaged() bool {
	for _, id := range models.AllCharacters() {
		if !t.engaged[id] {
			return false
		}
	}
	return true
}

// EngagedSet returns a copy of the engagement record.
func (t *Tracker) EngagedSet() map[models.CharacterID]bool {
	return maps.Clone(t.engaged)
}

// Flag returns the named flag, false when never set.
func (t *Tracker) Flag(name string) bool {
	return t.flags[name]
}

func (t *Tracker) SetFlag(name string, value bool) {
	t.flags[name] = value
}

// Reset starts a new run with nothing engaged and no flags.
func (t *Tracker) Reset() {
	t.engaged = make(map[models.CharacterID]bool, len(models.AllCharacters()))
	for _, id := range models.AllCharacters() {
		t.engaged[id] = false
	}
	t.flags = map[string]bool{}
}
