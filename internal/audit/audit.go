// Package audit emite eventos de seguridad por un logger dedicado ("audit"),
// separado del log de requests para poder rutearlo a otro sink.
package audit

import (
	"context"

	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

type Event string

const (
	AccountLocked  Event = "account.locked"
	PasswordReset  Event = "account.password_reset"
	AccountDeleted Event = "account.deleted"
	RoleAssigned   Event = "account.role_assigned"
	LogoutAll      Event = "session.logout_all"
	RefreshReused  Event = "session.refresh_reused"
	DeviceRevoked  Event = "device.revoked"

	FamilyMemberAdded   Event = "family.member_added"
	FamilyMemberRemoved Event = "family.member_removed"
	FamilyPermissions   Event = "family.permissions_changed"
	FamilyTransferred   Event = "family.creator_transferred"
	FamilyDeleted       Event = "family.deleted"
)

// Log registra ev con los campos del contexto (request_id, user_id...).
func Log(ctx context.Context, ev Event, fields ...logger.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(string(ev), append(fields, logger.String("event", string(ev)))...)
}
