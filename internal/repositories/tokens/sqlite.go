package tokens

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

// SQLiteRepository implements Repository over dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateDownload(ctx context.Context, t *models.DownloadToken) error {
	query := `
		INSERT INTO download_tokens (token, file_path, original_name, kind, created_at, expires_at, is_used)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.Token, t.FilePath, t.OriginalName, t.Kind,
		dbx.FormatTime(t.CreatedAt), dbx.FormatTime(t.ExpiresAt)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RedeemDownload burns the token with a single conditional UPDATE. The
// rows-affected count decides the winner under concurrency; losers get a
// classification of why the token was not redeemable.
func (r *SQLiteRepository) RedeemDownload(ctx context.Context, token string, now time.Time) (*models.DownloadToken, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE download_tokens SET is_used = 1 WHERE token = ? AND is_used = 0 AND expires_at > ?`,
		token, dbx.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	t, err := r.getDownload(ctx, token)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if t.Used {
			return nil, common.ErrTokenUsed
		}
		return nil, common.ErrTokenExpired
	}
	return t, nil
}

func (r *SQLiteRepository) getDownload(ctx context.Context, token string) (*models.DownloadToken, error) {
	query := `
		SELECT token, file_path, original_name, kind, created_at, expires_at, is_used
		FROM download_tokens
		WHERE token = ?
	`
	t := &models.DownloadToken{}
	var createdAt, expiresAt string
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.Token, &t.FilePath, &t.OriginalName, &t.Kind, &createdAt, &expiresAt, &t.Used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if t.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if t.ExpiresAt, err = dbx.ParseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateDeeplink(ctx context.Context, t *models.DeeplinkToken) error {
	query := `
		INSERT INTO deeplink_tokens (token, created_at, expires_at, is_used, issued_by)
		VALUES (?, ?, ?, 0, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.Token, dbx.FormatTime(t.CreatedAt), dbx.FormatTime(t.ExpiresAt), t.IssuedBy); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RedeemDeeplink(ctx context.Context, token string, now time.Time) (*models.DeeplinkToken, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE deeplink_tokens SET is_used = 1 WHERE token = ? AND is_used = 0 AND expires_at > ?`,
		token, dbx.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	t, err := r.getDeeplink(ctx, token)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if t.Used {
			return nil, common.ErrTokenUsed
		}
		return nil, common.ErrTokenExpired
	}
	return t, nil
}

func (r *SQLiteRepository) getDeeplink(ctx context.Context, token string) (*models.DeeplinkToken, error) {
	query := `
		SELECT id, token, created_at, expires_at, is_used, issued_by
		FROM deeplink_tokens
		WHERE token = ?
	`
	t := &models.DeeplinkToken{}
	var createdAt, expiresAt string
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.ID, &t.Token, &createdAt, &expiresAt, &t.Used, &t.IssuedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if t.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if t.ExpiresAt, err = dbx.ParseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"download_tokens", "deeplink_tokens"} {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE is_used = 1 OR expires_at <= ?`, dbx.FormatTime(now))
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
