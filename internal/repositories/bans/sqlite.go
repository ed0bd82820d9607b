package bans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/models"
)

// SQLiteRepository implements Repository over dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, b *models.BannedUser) error {
	query := `
		INSERT INTO banned_users (telegram_id, teamtalk_username, banned_at, banned_by, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			teamtalk_username = excluded.teamtalk_username,
			banned_at = excluded.banned_at,
			banned_by = excluded.banned_by,
			reason = excluded.reason
	`
	if _, err := r.db.ExecContext(ctx, query,
		b.TelegramID, b.Username, dbx.FormatTime(b.BannedAt), b.BannedBy, b.Reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, telegramID int64) (*models.BannedUser, error) {
	query := `
		SELECT telegram_id, teamtalk_username, banned_at, banned_by, reason
		FROM banned_users
		WHERE telegram_id = ?
	`
	b := &models.BannedUser{}
	var bannedAt string
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(
		&b.TelegramID, &b.Username, &bannedAt, &b.BannedBy, &b.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if b.BannedAt, err = dbx.ParseTime(bannedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) IsBanned(ctx context.Context, telegramID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM banned_users WHERE telegram_id = ?)`, telegramID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.BannedUser, error) {
	query := `
		SELECT telegram_id, teamtalk_username, banned_at, banned_by, reason
		FROM banned_users
		ORDER BY banned_at DESC, telegram_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.BannedUser
	for rows.Next() {
		b := &models.BannedUser{}
		var bannedAt string
		if err := rows.Scan(&b.TelegramID, &b.Username, &bannedAt, &b.BannedBy, &b.Reason); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if b.BannedAt, err = dbx.ParseTime(bannedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, telegramID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM banned_users WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
