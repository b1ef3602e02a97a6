// Package store provides SQLite-based profile storage for binderd.
package store

import (
	"errors"
	"time"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/macro"
	"binderd/internal/template"
)

// ErrNotFound is returned when a profile, bind or hotkey does not exist.
var ErrNotFound = errors.New("store: not found")

// DefaultProfileName names the profile seeded into an empty store.
const DefaultProfileName = "default"

// Profile is a complete profile: settings, variables, binds and macro
// hotkeys. It is also the export document.
type Profile struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Settings  engine.Settings    `json:"settings"`
	Variables template.Variables `json:"variables"`
	Binds     []bind.Bind        `json:"binds"`
	Hotkeys   []macro.Hotkey     `json:"hotkeys"`
}

// Ref returns the profile identity used on engine events.
func (p *Profile) Ref() engine.Profile {
	return engine.Profile{ID: p.ID, Name: p.Name}
}

// ProfileInfo summarizes a profile for listings.
type ProfileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Binds     int       `json:"binds"`
	Hotkeys   int       `json:"hotkeys"`
	Active    bool      `json:"active"`
}

// newProfile returns a profile with default settings and variables and no
// binds or hotkeys.
func newProfile(id, name string, now time.Time) *Profile {
	return &Profile{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  engine.DefaultSettings(),
		Variables: template.DefaultVariables(),
		Binds:     []bind.Bind{},
		Hotkeys:   []macro.Hotkey{},
	}
}
