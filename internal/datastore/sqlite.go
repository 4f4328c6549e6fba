package datastore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const (
	dbFile              = "socius.db"
	defaultListLimit    = 100
	maxListLimit        = 1000
	defaultHistoryLimit = store.DefaultHistoryLimit

	// fixed width so that text ordering is chronological
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLite keeps profiles, preferences, the interaction log and, when no redis is
// configured, conversation histories.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database in dataDir and applies pending migrations.
// ":memory:" opens an in-memory database.
func Open(dataDir string) (*SQLite, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: an in-memory database exists per connection and sqlite has a single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *SQLite) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

func (s *SQLite) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		p                profile.Profile
		interests, goals string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, industry, seniority, interests, goals, phone, email
		FROM profiles WHERE id = ?`, userID,
	).Scan(&p.ID, &p.Name, &p.Role, &p.Industry, &p.Seniority, &interests, &goals, &p.Contact.Phone, &p.Contact.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return nil, fmt.Errorf("decoding interests of %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(goals), &p.Goals); err != nil {
		return nil, fmt.Errorf("decoding goals of %s: %w", userID, err)
	}
	return &p, nil
}

// UpdateProfile applies update to the stored profile, creating it when missing.
func (s *SQLite) UpdateProfile(ctx context.Context, userID string, update *profile.Update) (*profile.Profile, error) {
	current, err := s.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		current = &profile.Profile{ID: userID}
	} else if err != nil {
		return nil, err
	}
	update.Apply(current)
	current.ID = userID

	interests, err := marshalList(current.Interests)
	if err != nil {
		return nil, err
	}
	goals, err := marshalList(current.Goals)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, role, industry, seniority, interests, goals, phone, email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, role = excluded.role, industry = excluded.industry,
			seniority = excluded.seniority, interests = excluded.interests, goals = excluded.goals,
			phone = excluded.phone, email = excluded.email, updated_at = excluded.updated_at`,
		current.ID, current.Name, current.Role, current.Industry, current.Seniority,
		interests, goals, current.Contact.Phone, current.Contact.Email, s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("saving profile %s: %w", userID, err)
	}
	return current, nil
}

// --- Preferences ---

func (s *SQLite) GetPreferences(ctx context.Context, userID string) (*store.Preferences, error) {
	prefs := store.Preferences{UserID: userID}
	var (
		style, perms string
		autoSchedule int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_style, permissions, high_match_threshold, auto_schedule_enabled
		FROM preferences WHERE user_id = ?`, userID,
	).Scan(&style, &perms, &prefs.HighMatchThreshold, &autoSchedule)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences of %s: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(style), &prefs.ConversationStyle); err != nil {
		return nil, fmt.Errorf("decoding conversation style of %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(perms), &prefs.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions of %s: %w", userID, err)
	}
	prefs.AutoScheduleEnabled = autoSchedule != 0
	return &prefs, nil
}

// UpdatePreferences applies update on top of the stored preferences, or on top of
// the defaults when the user has none yet.
func (s *SQLite) UpdatePreferences(ctx context.Context, userID string, update *store.PreferencesUpdate) (*store.Preferences, error) {
	current, err := s.GetPreferences(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		current = store.DefaultPreferences(userID)
	} else if err != nil {
		return nil, err
	}
	update.Apply(current)

	style, err := json.Marshal(current.ConversationStyle)
	if err != nil {
		return nil, fmt.Errorf("encoding conversation style: %w", err)
	}
	perms, err := json.Marshal(current.Permissions)
	if err != nil {
		return nil, fmt.Errorf("encoding permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, conversation_style, permissions, high_match_threshold, auto_schedule_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			conversation_style = excluded.conversation_style, permissions = excluded.permissions,
			high_match_threshold = excluded.high_match_threshold,
			auto_schedule_enabled = excluded.auto_schedule_enabled, updated_at = excluded.updated_at`,
		userID, string(style), string(perms), current.HighMatchThreshold, boolToInt(current.AutoScheduleEnabled), s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("saving preferences of %s: %w", userID, err)
	}
	return current, nil
}

// --- Interactions ---

// LogInteraction stores the record, assigning an id and timestamp when absent.
func (s *SQLite) LogInteraction(ctx context.Context, i *store.Interaction) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = s.now().UTC()
	}
	if i.Metadata == nil {
		i.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("encoding interaction metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, other_user_id, interaction_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.OtherUserID, i.Type, string(metadata), i.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving interaction: %w", err)
	}
	return nil
}

// ListInteractions returns matching records, newest first.
func (s *SQLite) ListInteractions(ctx context.Context, filter store.InteractionFilter) ([]store.Interaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.OtherUserID != "" {
		where = append(where, "other_user_id = ?")
		args = append(args, filter.OtherUserID)
	}
	if filter.Type != "" {
		where = append(where, "interaction_type = ?")
		args = append(args, filter.Type)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT id, user_id, other_user_id, interaction_type, metadata, created_at FROM interactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	result := []store.Interaction{}
	for rows.Next() {
		var (
			i                   store.Interaction
			metadata, createdAt string
		)
		if err := rows.Scan(&i.ID, &i.UserID, &i.OtherUserID, &i.Type, &metadata, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadata), &i.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of interaction %s: %w", i.ID, err)
		}
		if i.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of interaction %s: %w", i.ID, err)
		}
		result = append(result, i)
	}
	return result, rows.Err()
}

// --- Conversations ---

func (s *SQLite) AppendMessage(ctx context.Context, conversationID string, msg store.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encoding message metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Sender, msg.Message, string(metadata), msg.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving message to %s: %w", conversationID, err)
	}
	return nil
}

// History returns up to limit most recent messages, oldest first. An unknown
// conversation is ErrNotFound.
func (s *SQLite) History(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, message, metadata, created_at FROM (
			SELECT seq, sender, message, metadata, created_at FROM messages
			WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var history []store.Message
	for rows.Next() {
		var (
			m                   store.Message
			metadata, createdAt string
		)
		if err := rows.Scan(&m.Sender, &m.Message, &metadata, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding message metadata: %w", err)
		}
		if m.Timestamp, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history, nil
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// parseTimestamp reads timeLayout values and any other RFC 3339 text, such as
// rows written by hand or by older builds.
func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
