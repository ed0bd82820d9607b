package pendings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/talkreg/regbot/internal/common"
	"github.com/talkreg/regbot/internal/dbx"
	"github.com/talkreg/regbot/internal/models"
)

// SQLiteRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateTelegram(ctx context.Context, p *models.PendingTelegramRegistration) error {
	query := `
		INSERT INTO pending_telegram_registrations
			(request_key, telegram_id, username, password, nickname, source_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		p.RequestKey, p.TelegramID, p.Username, p.Password, p.Nickname, p.SourceInfo,
		dbx.FormatTime(p.CreatedAt)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTelegram(ctx context.Context, requestKey string) (*models.PendingTelegramRegistration, error) {
	query := `
		SELECT id, request_key, telegram_id, username, password, nickname, source_info, created_at
		FROM pending_telegram_registrations
		WHERE request_key = ?
	`
	p := &models.PendingTelegramRegistration{}
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, requestKey).Scan(
		&p.ID, &p.RequestKey, &p.TelegramID, &p.Username, &p.Password, &p.Nickname, &p.SourceInfo, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if p.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) DeleteTelegram(ctx context.Context, requestKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_telegram_registrations WHERE request_key = ?`, requestKey)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListTelegram(ctx context.Context) ([]*models.PendingTelegramRegistration, error) {
	query := `
		SELECT id, request_key, telegram_id, username, password, nickname, source_info, created_at
		FROM pending_telegram_registrations
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingTelegramRegistration
	for rows.Next() {
		p := &models.PendingTelegramRegistration{}
		var createdAt string
		if err := rows.Scan(&p.ID, &p.RequestKey, &p.TelegramID, &p.Username, &p.Password,
			&p.Nickname, &p.SourceInfo, &createdAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if p.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) CreateWeb(ctx context.Context, p *models.PendingWebRegistration) error {
	query := `
		INSERT INTO pending_web_registrations
			(request_key, username, password, nickname, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		p.RequestKey, p.Username, p.Password, p.Nickname, p.IPAddress, p.UserAgent,
		dbx.FormatTime(p.CreatedAt)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetWeb(ctx context.Context, requestKey string) (*models.PendingWebRegistration, error) {
	query := `
		SELECT id, request_key, username, password, nickname, ip_address, user_agent, created_at
		FROM pending_web_registrations
		WHERE request_key = ?
	`
	p := &models.PendingWebRegistration{}
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, requestKey).Scan(
		&p.ID, &p.RequestKey, &p.Username, &p.Password, &p.Nickname, &p.IPAddress, &p.UserAgent, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if p.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) DeleteWeb(ctx context.Context, requestKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_web_registrations WHERE request_key = ?`, requestKey)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) UsernamePending(ctx context.Context, username string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pending_telegram_registrations WHERE username = ?
			UNION
			SELECT 1 FROM pending_web_registrations WHERE username = ?
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) HasTelegramPending(ctx context.Context, telegramID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM pending_telegram_registrations WHERE telegram_id = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"pending_telegram_registrations", "pending_web_registrations"} {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE created_at < ?`, dbx.FormatTime(cutoff))
		if err != nil {
			return total, fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("db error: %w", err)
		}
		total += n
	}
	return total, nil
}
