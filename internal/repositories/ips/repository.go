// Package ips declares the repository contract for the one-account-per-IP
// policy applied to web registrations.
package ips

import (
	"context"
	"time"

	"github.com/talkreg/regbot/internal/models"
)

// Repository stores addresses that completed a web registration.
type Repository interface {
	// Create records a successful registration from an address.
	Create(ctx context.Context, ip *models.RegisteredIP) error

	// Exists reports whether the address already registered an account.
	Exists(ctx context.Context, ipAddress string) (bool, error)

	// PurgeOlderThan deletes records older than cutoff and returns the
	// number of rows removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
