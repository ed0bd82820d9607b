package ips

import (
	"context"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Create(ctx context.Context, ip *models.RegisteredIP) error {
	query := `
		INSERT INTO registered_ips (ip_address, username, registered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ip_address) DO UPDATE SET
			username = excluded.username,
			registered_at = excluded.registered_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		ip.IPAddress, ip.Username, dbx.FormatTime(ip.RegisteredAt)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, ipAddress string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registered_ips WHERE ip_address = ?)`, ipAddress).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM registered_ips WHERE registered_at < ?`, dbx.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
