package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"journal/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

const userColumns = `id, email, display_name, password_hash, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var verificationExpires sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&verificationExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if verificationExpires.Valid {
		user.VerificationExpiresAt = &verificationExpires.Time
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, strings.TrimSpace(email))
	user, err := scanUser(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	if !util.IsUUID(userID) {
		return User{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	user, err := scanUser(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user by id: %w", err)
	}
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, is_email_verified)
		VALUES (LOWER($1), $2, $3, $4)
		RETURNING `+userColumns,
		strings.TrimSpace(user.Email), user.DisplayName, user.PasswordHash, user.IsEmailVerified,
	)
	created, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup password reset: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// Sessions

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Journal entries

const entryColumns = `id, user_id, title, content, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (JournalEntry, error) {
	var entry JournalEntry
	err := row.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Content, &entry.CreatedAt, &entry.UpdatedAt)
	return entry, err
}

func (s *PostgresStore) ListEntries(ctx context.Context, userID string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM journal_entries
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	items := make([]JournalEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return items, nil
}

// GetEntry returns nil without error when the entry does not exist or
// belongs to another user.
func (s *PostgresStore) GetEntry(ctx context.Context, userID, entryID string) (*JournalEntry, error) {
	if !util.IsUUID(entryID) {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND user_id=$2
	`, entryID, userID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &entry, nil
}

func (s *PostgresStore) CreateEntry(ctx context.Context, userID, title, content string) (JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO journal_entries (user_id, title, content)
		VALUES ($1, $2, $3)
		RETURNING `+entryColumns,
		userID, title, content,
	)
	entry, err := scanEntry(row)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, userID, entryID string, update EntryUpdate) (JournalEntry, error) {
	if !util.IsUUID(entryID) {
		return JournalEntry{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE journal_entries
		SET title = COALESCE($3, title),
			content = COALESCE($4, content),
			updated_at = NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+entryColumns,
		entryID, userID, nullableString(update.Title), nullableString(update.Content),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JournalEntry{}, ErrNotFound
	}
	if err != nil {
		return JournalEntry{}, fmt.Errorf("update entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if !util.IsUUID(entryID) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id=$1 AND user_id=$2`, entryID, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireAffected(result)
}

// AI analyses

const analysisColumns = `id, entry_id, user_id, summary, emotions, suggestions, model, created_at`

func scanAnalysis(row interface{ Scan(...any) error }) (AIAnalysis, error) {
	var item AIAnalysis
	var emotions, suggestions []byte
	if err := row.Scan(&item.ID, &item.EntryID, &item.UserID, &item.Summary, &emotions, &suggestions, &item.Model, &item.CreatedAt); err != nil {
		return AIAnalysis{}, err
	}
	if err := json.Unmarshal(emotions, &item.Emotions); err != nil {
		return AIAnalysis{}, fmt.Errorf("decode emotions: %w", err)
	}
	if err := json.Unmarshal(suggestions, &item.Suggestions); err != nil {
		return AIAnalysis{}, fmt.Errorf("decode suggestions: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, userID string, input AnalysisInput) (AIAnalysis, error) {
	emotions, err := json.Marshal(nonNilStrings(input.Emotions))
	if err != nil {
		return AIAnalysis{}, fmt.Errorf("encode emotions: %w", err)
	}
	suggestions, err := json.Marshal(nonNilStrings(input.Suggestions))
	if err != nil {
		return AIAnalysis{}, fmt.Errorf("encode suggestions: %w", err)
	}

	// The entry must belong to the caller; the insert selects from it so a
	// foreign entry id inserts nothing.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_analyses (entry_id, user_id, summary, emotions, suggestions, model)
		SELECT e.id, e.user_id, $3, $4::jsonb, $5::jsonb, $6
		FROM journal_entries e
		WHERE e.id=$1 AND e.user_id=$2
		RETURNING `+analysisColumns,
		input.EntryID, userID, input.Summary, string(emotions), string(suggestions), input.Model,
	)
	item, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AIAnalysis{}, ErrNotFound
	}
	if err != nil {
		return AIAnalysis{}, fmt.Errorf("insert analysis: %w", err)
	}
	return item, nil
}

// LatestAnalysis returns the newest analysis of an entry, or nil when the
// entry has none.
func (s *PostgresStore) LatestAnalysis(ctx context.Context, userID, entryID string) (*AIAnalysis, error) {
	if !util.IsUUID(entryID) {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisColumns+` FROM ai_analyses
		WHERE entry_id=$1 AND user_id=$2
		ORDER BY created_at DESC
		LIMIT 1
	`, entryID, userID)
	item, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListEntriesWithAnalysis(ctx context.Context, userID string) ([]EntryWithAnalysis, error) {
	entries, err := s.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+` FROM ai_analyses
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	byEntry := make(map[string][]AIAnalysis)
	for rows.Next() {
		item, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		byEntry[item.EntryID] = append(byEntry[item.EntryID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}

	return JoinAnalyses(entries, byEntry), nil
}

// JoinAnalyses attaches analyses to their entries, keeping entry order.
func JoinAnalyses(entries []JournalEntry, byEntry map[string][]AIAnalysis) []EntryWithAnalysis {
	items := make([]EntryWithAnalysis, 0, len(entries))
	for _, entry := range entries {
		analyses := byEntry[entry.ID]
		if analyses == nil {
			analyses = []AIAnalysis{}
		}
		items = append(items, EntryWithAnalysis{JournalEntry: entry, AIAnalyses: analyses})
	}
	return items
}

// ListAllEntries walks every entry for search reindexing.
func (s *PostgresStore) ListAllEntries(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list all entries: %w", err)
	}
	defer rows.Close()

	items := make([]JournalEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
