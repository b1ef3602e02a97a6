package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/template"
)

const metaActiveProfile = "active_profile_id"

// Store represents the SQLite profile store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time

	eventMu    sync.RWMutex
	closed     bool
	eventChan  chan engine.Event
	eventsDone chan struct{}
}

type options struct {
	busyTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout sets how long a writer waits for a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithLogger sets the logger used for failures that have no caller to
// return to, such as event sink writes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		busyTimeout: 5 * time.Second,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:         db,
		log:        o.logger,
		now:        o.now,
		eventChan:  make(chan engine.Event, eventQueueSize),
		eventsDone: make(chan struct{}),
	}
	go s.writeEvents()
	return s, nil
}

// Close drains queued events and closes the database connection.
func (s *Store) Close() error {
	s.eventMu.Lock()
	if s.closed {
		s.eventMu.Unlock()
		return nil
	}
	s.closed = true
	if s.eventChan != nil {
		close(s.eventChan)
	}
	s.eventMu.Unlock()
	if s.eventsDone != nil {
		<-s.eventsDone
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// MigrationStatus reports the schema version of the open database.
func (s *Store) MigrationStatus() (*MigrationStatus, error) {
	return GetMigrationStatus(s.db)
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) stamp() int64 {
	return s.now().UnixNano()
}

func fromStamp(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func newID() string {
	return uuid.NewString()
}

// EnsureDefault seeds the default profile when the store is empty and
// repairs a dangling active profile. It returns the active profile and
// whether a profile was created.
func (s *Store) EnsureDefault() (*Profile, bool, error) {
	created := false
	err := s.withTx(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if count == 0 {
			created = true
			_, err := s.seedDefault(tx)
			return err
		}
		_, err := s.activeID(tx)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	p, err := s.GetProfile("")
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

// seedDefault inserts the default profile with sample binds and makes it active.
func (s *Store) seedDefault(tx *sql.Tx) (*Profile, error) {
	now := fromStamp(s.stamp())
	p := newProfile(newID(), DefaultProfileName, now)
	for _, b := range bind.Defaults() {
		b.ID = newID()
		p.Binds = append(p.Binds, b)
	}
	if err := insertProfile(tx, p); err != nil {
		return nil, err
	}
	if err := setMeta(tx, metaActiveProfile, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// activeID returns the active profile id, falling back to the first profile
// and persisting the fallback. ErrNotFound means the store is empty.
func (s *Store) activeID(q querier) (string, error) {
	id, err := getMeta(q, metaActiveProfile)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if id != "" {
		ok, err := profileExists(q, id)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}

	first, err := firstProfileID(q)
	if err != nil {
		return "", err
	}
	if err := setMeta(q, metaActiveProfile, first); err != nil {
		return "", err
	}
	return first, nil
}

// resolve maps "" to the active profile and checks that id exists.
func (s *Store) resolve(q querier, id string) (string, error) {
	if id == "" {
		return s.activeID(q)
	}
	ok, err := profileExists(q, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return id, nil
}

// ActiveProfileID returns the id of the active profile, seeding the
// default profile into an empty store.
func (s *Store) ActiveProfileID() (string, error) {
	p, _, err := s.EnsureDefault()
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// ActiveProfile returns the active profile, seeding the default profile
// into an empty store.
func (s *Store) ActiveProfile() (*Profile, error) {
	p, _, err := s.EnsureDefault()
	return p, err
}

// SetActiveProfile makes id the active profile.
func (s *Store) SetActiveProfile(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		ok, err := profileExists(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return setMeta(tx, metaActiveProfile, id)
	})
}

// ListProfiles returns every profile in creation order.
func (s *Store) ListProfiles() ([]ProfileInfo, error) {
	active, err := s.activeID(s.db)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT p.id, p.name, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM binds b WHERE b.profile_id = p.id),
			(SELECT COUNT(*) FROM hotkeys h WHERE h.profile_id = p.id)
		FROM profiles p
		ORDER BY p.created_at ASC, p.rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileInfo
	for rows.Next() {
		var info ProfileInfo
		var created, updated int64
		if err := rows.Scan(&info.ID, &info.Name, &created, &updated, &info.Binds, &info.Hotkeys); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		info.CreatedAt = fromStamp(created)
		info.UpdatedAt = fromStamp(updated)
		info.Active = info.ID == active
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// GetProfile loads a complete profile. An empty id means the active profile.
func (s *Store) GetProfile(id string) (*Profile, error) {
	id, err := s.resolve(s.db, id)
	if err != nil {
		return nil, err
	}
	return loadProfile(s.db, id)
}

// AddProfile creates a profile with default settings and variables and no
// binds or hotkeys.
func (s *Store) AddProfile(name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("store: profile name is required")
	}

	p := newProfile(newID(), name, fromStamp(s.stamp()))
	if err := s.withTx(func(tx *sql.Tx) error {
		return insertProfile(tx, p)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// RenameProfile changes a profile name.
func (s *Store) RenameProfile(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("store: profile name is required")
	}

	res, err := s.db.Exec("UPDATE profiles SET name = ?, updated_at = ? WHERE id = ?", name, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("rename profile: %w", err)
	}
	return expectRow(res, "profile", id)
}

// DeleteProfile removes a profile with its binds and hotkeys. Deleting the
// active profile activates the first remaining one, or a fresh default
// profile when none remain.
func (s *Store) DeleteProfile(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		active, err := getMeta(tx, metaActiveProfile)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		res, err := tx.Exec("DELETE FROM profiles WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		if err := expectRow(res, "profile", id); err != nil {
			return err
		}

		if active != id {
			return nil
		}
		first, err := firstProfileID(tx)
		switch {
		case errors.Is(err, ErrNotFound):
			_, err = s.seedDefault(tx)
			return err
		case err != nil:
			return err
		}
		return setMeta(tx, metaActiveProfile, first)
	})
}

// UpdateSettings replaces the settings of a profile. An empty id means the
// active profile.
func (s *Store) UpdateSettings(id string, settings engine.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.updateProfileColumn(id, "settings", string(data))
}

// UpdateVariables replaces the template variables of a profile. An empty id
// means the active profile.
func (s *Store) UpdateVariables(id string, vars template.Variables) error {
	if vars == nil {
		vars = template.Variables{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	return s.updateProfileColumn(id, "variables", string(data))
}

// column is always a constant from this package.
func (s *Store) updateProfileColumn(id, column, value string) error {
	return s.withTx(func(tx *sql.Tx) error {
		id, err := s.resolve(tx, id)
		if err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE profiles SET "+column+" = ?, updated_at = ? WHERE id = ?", value, s.stamp(), id)
		if err != nil {
			return fmt.Errorf("update profile %s: %w", column, err)
		}
		return nil
	})
}

// NextProfileID returns the profile after the active one in creation order,
// wrapping around.
func (s *Store) NextProfileID() (string, error) {
	profiles, err := s.ListProfiles()
	if err != nil {
		return "", err
	}
	if len(profiles) == 0 {
		return "", fmt.Errorf("no profiles: %w", ErrNotFound)
	}
	for i, p := range profiles {
		if p.Active {
			return profiles[(i+1)%len(profiles)].ID, nil
		}
	}
	return profiles[0].ID, nil
}

// EngineConfig builds the engine configuration of a profile. An empty id
// means the active profile.
func (s *Store) EngineConfig(profileID string) (engine.Config, error) {
	if profileID == "" {
		if _, _, err := s.EnsureDefault(); err != nil {
			return engine.Config{}, err
		}
	}
	p, err := s.GetProfile(profileID)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Profile:   p.Ref(),
		Settings:  p.Settings,
		Binds:     p.Binds,
		Variables: p.Variables,
		Hotkeys:   p.Hotkeys,
	}, nil
}

func insertProfile(tx *sql.Tx, p *Profile) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	vars := p.Variables
	if vars == nil {
		vars = template.Variables{}
	}
	variables, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO profiles (id, name, created_at, updated_at, settings, variables)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(), string(settings), string(variables),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	for i := range p.Binds {
		if err := insertBind(tx, p.ID, i, &p.Binds[i]); err != nil {
			return err
		}
	}
	for i := range p.Hotkeys {
		if err := insertHotkey(tx, p.ID, i, &p.Hotkeys[i]); err != nil {
			return err
		}
	}
	return nil
}

func loadProfile(q querier, id string) (*Profile, error) {
	var (
		p                  Profile
		created, updated   int64
		settings, varsJSON string
	)
	err := q.QueryRow(`
		SELECT id, name, created_at, updated_at, settings, variables
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &created, &updated, &settings, &varsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt = fromStamp(created)
	p.UpdatedAt = fromStamp(updated)

	if err := json.Unmarshal([]byte(settings), &p.Settings); err != nil {
		return nil, fmt.Errorf("decode settings of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(varsJSON), &p.Variables); err != nil {
		return nil, fmt.Errorf("decode variables of %s: %w", id, err)
	}
	if p.Variables == nil {
		p.Variables = template.Variables{}
	}

	if p.Binds, err = listBinds(q, id); err != nil {
		return nil, err
	}
	if p.Hotkeys, err = listHotkeys(q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func profileExists(q querier, id string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM profiles WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check profile: %w", err)
	}
	return true, nil
}

func firstProfileID(q querier) (string, error) {
	var id string
	err := q.QueryRow("SELECT id FROM profiles ORDER BY created_at ASC, rowid ASC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no profiles: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("first profile: %w", err)
	}
	return id, nil
}

func getMeta(q querier, key string) (string, error) {
	var value string
	err := q.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

func setMeta(q querier, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func touchProfile(q querier, id string, stamp int64) error {
	if _, err := q.Exec("UPDATE profiles SET updated_at = ? WHERE id = ?", stamp, id); err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
