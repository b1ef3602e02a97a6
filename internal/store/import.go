package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/macro"
	"binderd/internal/schemavalidation"
	"binderd/internal/template"
)

// ExportProfile returns a complete copy of a profile. An empty id means the
// active profile.
func (s *Store) ExportProfile(id string) (*Profile, error) {
	return s.GetProfile(id)
}

// ExportProfileJSON returns the profile as an indented JSON document that
// ImportProfileJSON accepts.
func (s *Store) ExportProfileJSON(id string) ([]byte, error) {
	p, err := s.ExportProfile(id)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return data, nil
}

// ImportProfile adds a copy of p under fresh ids for the profile, its binds
// and its hotkeys. nameOverride replaces the stored name when set.
func (s *Store) ImportProfile(p Profile, nameOverride string) (*Profile, error) {
	var out *Profile
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		out, err = s.importProfile(tx, p, nameOverride)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) importProfile(tx *sql.Tx, p Profile, nameOverride string) (*Profile, error) {
	now := fromStamp(s.stamp())

	name := strings.TrimSpace(nameOverride)
	if name == "" {
		name = strings.TrimSpace(p.Name)
	}
	if name == "" {
		name = "imported"
	}

	out := &Profile{
		ID:        newID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  p.Settings,
		Variables: p.Variables.Clone(),
		Binds:     make([]bind.Bind, 0, len(p.Binds)),
		Hotkeys:   make([]macro.Hotkey, 0, len(p.Hotkeys)),
	}
	if out.Variables == nil {
		out.Variables = template.Variables{}
	}

	for i, b := range p.Binds {
		if err := normalizeBind(&b); err != nil {
			return nil, fmt.Errorf("bind %d: %w", i, err)
		}
		b.ID = newID()
		out.Binds = append(out.Binds, b)
	}
	for i, h := range p.Hotkeys {
		h.Steps = append([]macro.Step(nil), h.Steps...)
		if err := normalizeHotkey(&h); err != nil {
			return nil, fmt.Errorf("hotkey %d: %w", i, err)
		}
		h.ID = newID()
		out.Hotkeys = append(out.Hotkeys, h)
	}

	if err := insertProfile(tx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportProfileJSON validates an exported profile document against the
// profile schema and imports it. Absent settings, variables and bind options
// take their defaults.
func (s *Store) ImportProfileJSON(data []byte, nameOverride string) (*Profile, error) {
	doc, err := schemavalidation.ValidateJSON(schemavalidation.Profile, data)
	if err != nil {
		return nil, fmt.Errorf("invalid profile document: %w", err)
	}
	p, err := decodeProfile(doc)
	if err != nil {
		return nil, err
	}
	return s.ImportProfile(p, nameOverride)
}

// ImportLegacyFile imports every profile of a profiles.json file written by
// earlier binder releases ({"active_profile_id": ..., "profiles": [...]}). The
// file's active profile becomes active when present.
func (s *Store) ImportLegacyFile(path string) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy profiles: %w", err)
	}

	doc, err := schemavalidation.ValidateJSON(schemavalidation.Profiles, data)
	if err != nil {
		return nil, fmt.Errorf("invalid legacy profiles file: %w", err)
	}

	rawProfiles, _ := doc["profiles"].([]any)
	activeID, _ := doc["active_profile_id"].(string)

	profiles := make([]Profile, 0, len(rawProfiles))
	oldIDs := make([]string, 0, len(rawProfiles))
	for i, raw := range rawProfiles {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("profile %d is not an object", i)
		}
		p, err := decodeProfile(m)
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		profiles = append(profiles, p)
		id, _ := m["id"].(string)
		oldIDs = append(oldIDs, id)
	}

	var out []*Profile
	err = s.withTx(func(tx *sql.Tx) error {
		for i, p := range profiles {
			imported, err := s.importProfile(tx, p, "")
			if err != nil {
				return fmt.Errorf("import %q: %w", p.Name, err)
			}
			out = append(out, imported)
			if activeID != "" && oldIDs[i] == activeID {
				if err := setMeta(tx, metaActiveProfile, imported.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeProfile maps a schema-validated document onto a Profile.
func decodeProfile(doc map[string]any) (Profile, error) {
	p := Profile{
		Settings:  engine.DefaultSettings(),
		Variables: template.DefaultVariables(),
	}
	p.Name, _ = doc["name"].(string)

	if raw, ok := doc["settings"]; ok && raw != nil {
		if err := decodeInto(raw, &p.Settings); err != nil {
			return Profile{}, fmt.Errorf("decode settings: %w", err)
		}
	}

	if raw, ok := doc["variables"]; ok && raw != nil {
		vars := template.Variables{}
		if err := decodeInto(raw, &vars); err != nil {
			return Profile{}, fmt.Errorf("decode variables: %w", err)
		}
		p.Variables = vars
	}

	rawBinds, _ := doc["binds"].([]any)
	for i, raw := range rawBinds {
		b := bind.Bind{Type: bind.Text, Options: bind.DefaultOptions()}
		if err := decodeInto(raw, &b); err != nil {
			return Profile{}, fmt.Errorf("decode bind %d: %w", i, err)
		}
		p.Binds = append(p.Binds, b)
	}

	rawHotkeys, _ := doc["hotkeys"].([]any)
	for i, raw := range rawHotkeys {
		var h macro.Hotkey
		if err := decodeInto(raw, &h); err != nil {
			return Profile{}, fmt.Errorf("decode hotkey %d: %w", i, err)
		}
		p.Hotkeys = append(p.Hotkeys, h)
	}

	return p, nil
}

// decodeInto decodes input over out. Fields absent from input keep their
// current values; lists present in input replace the current ones.
func decodeInto(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		ZeroFields: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
