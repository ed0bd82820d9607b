// Package services contains the business logic of the registration
// service: intake validation, approval, provisioning against the
// directory, token issuance, and the background reconciliation and
// cleanup workers.
package services

import "context"

// Notifier delivers out-of-band messages to admins and users. The chat
// bot implements it; deployments without a bot use NopNotifier.
type Notifier interface {
	// NotifyAdmins sends text to every configured admin. Delivery is best
	// effort and must not fail the calling operation.
	NotifyAdmins(ctx context.Context, text string)

	// NotifyUser sends text to one chat identity, best effort.
	NotifyUser(ctx context.Context, telegramID int64, text string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyAdmins(ctx context.Context, text string)               {}
func (NopNotifier) NotifyUser(ctx context.Context, telegramID int64, text string) {}
