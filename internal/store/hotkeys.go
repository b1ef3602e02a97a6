package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"binderd/internal/hotkey"
	"binderd/internal/macro"
)

func normalizeHotkey(h *macro.Hotkey) error {
	if h.Hotkey != "" {
		h.Hotkey = hotkey.Normalize(h.Hotkey)
		if !hotkey.Valid(h.Hotkey) {
			return fmt.Errorf("store: invalid hotkey %q", h.Hotkey)
		}
	}
	for i, step := range h.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("store: step %d: %w", i, err)
		}
	}
	if h.Steps == nil {
		h.Steps = []macro.Step{}
	}
	return nil
}

// ListHotkeys returns the macro hotkeys of a profile in display order.
func (s *Store) ListHotkeys(profileID string) ([]macro.Hotkey, error) {
	id, err := s.resolve(s.db, profileID)
	if err != nil {
		return nil, err
	}
	return listHotkeys(s.db, id)
}

// GetHotkey returns one macro hotkey of a profile.
func (s *Store) GetHotkey(profileID, hotkeyID string) (*macro.Hotkey, error) {
	id, err := s.resolve(s.db, profileID)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow("SELECT id, title, hotkey, steps FROM hotkeys WHERE profile_id = ? AND id = ?", id, hotkeyID)
	h, err := scanHotkey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hotkey %s: %w", hotkeyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get hotkey: %w", err)
	}
	return &h, nil
}

// AddHotkey appends a macro hotkey to a profile and returns it with its new id.
func (s *Store) AddHotkey(profileID string, h macro.Hotkey) (macro.Hotkey, error) {
	if err := normalizeHotkey(&h); err != nil {
		return macro.Hotkey{}, err
	}
	h.ID = newID()

	err := s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		var next int
		if err := tx.QueryRow("SELECT COALESCE(MAX(ordinal), -1) + 1 FROM hotkeys WHERE profile_id = ?", id).Scan(&next); err != nil {
			return fmt.Errorf("next hotkey ordinal: %w", err)
		}
		if err := insertHotkey(tx, id, next, &h); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
	if err != nil {
		return macro.Hotkey{}, err
	}
	return h, nil
}

// UpdateHotkey replaces a macro hotkey, keeping its id and position.
func (s *Store) UpdateHotkey(profileID, hotkeyID string, h macro.Hotkey) (macro.Hotkey, error) {
	if err := normalizeHotkey(&h); err != nil {
		return macro.Hotkey{}, err
	}
	h.ID = hotkeyID

	steps, err := json.Marshal(h.Steps)
	if err != nil {
		return macro.Hotkey{}, fmt.Errorf("encode steps: %w", err)
	}

	err = s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		res, err := tx.Exec(`
			UPDATE hotkeys SET title = ?, hotkey = ?, steps = ?
			WHERE profile_id = ? AND id = ?`,
			h.Title, h.Hotkey, string(steps), id, hotkeyID,
		)
		if err != nil {
			return fmt.Errorf("update hotkey: %w", err)
		}
		if err := expectRow(res, "hotkey", hotkeyID); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
	if err != nil {
		return macro.Hotkey{}, err
	}
	return h, nil
}

// DeleteHotkey removes a macro hotkey from a profile.
func (s *Store) DeleteHotkey(profileID, hotkeyID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM hotkeys WHERE profile_id = ? AND id = ?", id, hotkeyID)
		if err != nil {
			return fmt.Errorf("delete hotkey: %w", err)
		}
		if err := expectRow(res, "hotkey", hotkeyID); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
}

func insertHotkey(tx *sql.Tx, profileID string, ordinal int, h *macro.Hotkey) error {
	steps := h.Steps
	if steps == nil {
		steps = []macro.Step{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO hotkeys (id, profile_id, ordinal, title, hotkey, steps)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, profileID, ordinal, h.Title, h.Hotkey, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert hotkey: %w", err)
	}
	return nil
}

func listHotkeys(q querier, profileID string) ([]macro.Hotkey, error) {
	rows, err := q.Query("SELECT id, title, hotkey, steps FROM hotkeys WHERE profile_id = ? ORDER BY ordinal ASC", profileID)
	if err != nil {
		return nil, fmt.Errorf("query hotkeys: %w", err)
	}
	defer rows.Close()

	out := []macro.Hotkey{}
	for rows.Next() {
		h, err := scanHotkey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hotkey: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hotkeys: %w", err)
	}
	return out, nil
}

func scanHotkey(sc scanner) (macro.Hotkey, error) {
	var (
		h     macro.Hotkey
		steps string
	)
	if err := sc.Scan(&h.ID, &h.Title, &h.Hotkey, &steps); err != nil {
		return h, err
	}
	if err := json.Unmarshal([]byte(steps), &h.Steps); err != nil {
		return h, fmt.Errorf("decode steps of %s: %w", h.ID, err)
	}
	if h.Steps == nil {
		h.Steps = []macro.Step{}
	}
	return h, nil
}
