package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"binderd/internal/bind"
)

const bindColumns = `id, title, category, trigger_text, type, content,
	delete_trigger, case_sensitive, only_prefix, cursor_back`

// normalizeBind fills the default type and rejects binds the engine
// cannot run.
func normalizeBind(b *bind.Bind) error {
	if strings.TrimSpace(b.Trigger) == "" {
		return errors.New("store: bind trigger is required")
	}
	typ, err := bind.ParseType(string(b.Type))
	if err != nil {
		return err
	}
	b.Type = typ
	if b.CursorBack < 0 {
		return fmt.Errorf("store: bind cursor_back must be non-negative, got %d", b.CursorBack)
	}
	return nil
}

// ListBinds returns the binds of a profile in display order. An empty
// profile id means the active profile.
func (s *Store) ListBinds(profileID string) ([]bind.Bind, error) {
	id, err := s.resolve(s.db, profileID)
	if err != nil {
		return nil, err
	}
	return listBinds(s.db, id)
}

// GetBind returns one bind of a profile.
func (s *Store) GetBind(profileID, bindID string) (*bind.Bind, error) {
	id, err := s.resolve(s.db, profileID)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow("SELECT "+bindColumns+" FROM binds WHERE profile_id = ? AND id = ?", id, bindID)
	b, err := scanBind(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bind %s: %w", bindID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bind: %w", err)
	}
	return &b, nil
}

// AddBind appends a bind to a profile and returns it with its new id.
func (s *Store) AddBind(profileID string, b bind.Bind) (bind.Bind, error) {
	if err := normalizeBind(&b); err != nil {
		return bind.Bind{}, err
	}
	b.ID = newID()

	err := s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		var next int
		if err := tx.QueryRow("SELECT COALESCE(MAX(ordinal), -1) + 1 FROM binds WHERE profile_id = ?", id).Scan(&next); err != nil {
			return fmt.Errorf("next bind ordinal: %w", err)
		}
		if err := insertBind(tx, id, next, &b); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
	if err != nil {
		return bind.Bind{}, err
	}
	return b, nil
}

// UpdateBind replaces a bind, keeping its id and position.
func (s *Store) UpdateBind(profileID, bindID string, b bind.Bind) (bind.Bind, error) {
	if err := normalizeBind(&b); err != nil {
		return bind.Bind{}, err
	}
	b.ID = bindID

	err := s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		res, err := tx.Exec(`
			UPDATE binds SET title = ?, category = ?, trigger_text = ?, type = ?, content = ?,
				delete_trigger = ?, case_sensitive = ?, only_prefix = ?, cursor_back = ?
			WHERE profile_id = ? AND id = ?`,
			b.Title, b.Category, b.Trigger, string(b.Type), b.Content,
			b.Options.DeleteTrigger, b.Options.CaseSensitive, b.Options.OnlyPrefix, b.CursorBack,
			id, bindID,
		)
		if err != nil {
			return fmt.Errorf("update bind: %w", err)
		}
		if err := expectRow(res, "bind", bindID); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
	if err != nil {
		return bind.Bind{}, err
	}
	return b, nil
}

// DeleteBind removes a bind from a profile.
func (s *Store) DeleteBind(profileID, bindID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, profileID)
		if err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM binds WHERE profile_id = ? AND id = ?", id, bindID)
		if err != nil {
			return fmt.Errorf("delete bind: %w", err)
		}
		if err := expectRow(res, "bind", bindID); err != nil {
			return err
		}
		return touchProfile(tx, id, s.stamp())
	})
}

// TriggerSet returns the triggers used by a profile, skipping excludeID.
// Editors use it to warn about duplicate triggers.
func (s *Store) TriggerSet(profileID, excludeID string) (map[string]bool, error) {
	binds, err := s.ListBinds(profileID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(binds))
	for _, b := range binds {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		set[b.Trigger] = true
	}
	return set, nil
}

func insertBind(tx *sql.Tx, profileID string, ordinal int, b *bind.Bind) error {
	if b.Type == "" {
		b.Type = bind.Text
	}
	_, err := tx.Exec(`
		INSERT INTO binds (profile_id, ordinal, `+bindColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profileID, ordinal,
		b.ID, b.Title, b.Category, b.Trigger, string(b.Type), b.Content,
		b.Options.DeleteTrigger, b.Options.CaseSensitive, b.Options.OnlyPrefix, b.CursorBack,
	)
	if err != nil {
		return fmt.Errorf("insert bind: %w", err)
	}
	return nil
}

func listBinds(q querier, profileID string) ([]bind.Bind, error) {
	rows, err := q.Query("SELECT "+bindColumns+" FROM binds WHERE profile_id = ? ORDER BY ordinal ASC", profileID)
	if err != nil {
		return nil, fmt.Errorf("query binds: %w", err)
	}
	defer rows.Close()

	out := []bind.Bind{}
	for rows.Next() {
		b, err := scanBind(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bind: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate binds: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBind(sc scanner) (bind.Bind, error) {
	var (
		b   bind.Bind
		typ string
	)
	err := sc.Scan(&b.ID, &b.Title, &b.Category, &b.Trigger, &typ, &b.Content,
		&b.Options.DeleteTrigger, &b.Options.CaseSensitive, &b.Options.OnlyPrefix, &b.CursorBack)
	b.Type = bind.Type(typ)
	return b, err
}
