package links

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

func (r *SQLiteRepository) Upsert(ctx context.Context, telegramID int64, username string) error {
	query := `
		INSERT INTO telegram_registrations (telegram_id, teamtalk_username)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET teamtalk_username = excluded.teamtalk_username
	`
	if _, err := r.db.ExecContext(ctx, query, telegramID, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, telegramID int64) (*models.AccountLink, error) {
	link := &models.AccountLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, teamtalk_username FROM telegram_registrations WHERE telegram_id = ?`,
		telegramID).Scan(&link.TelegramID, &link.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.AccountLink, error) {
	link := &models.AccountLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, teamtalk_username FROM telegram_registrations WHERE teamtalk_username = ?`,
		username).Scan(&link.TelegramID, &link.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.AccountLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT telegram_id, teamtalk_username FROM telegram_registrations ORDER BY telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccountLink
	for rows.Next() {
		link := &models.AccountLink{}
		if err := rows.Scan(&link.TelegramID, &link.Username); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, telegramID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM telegram_registrations WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
