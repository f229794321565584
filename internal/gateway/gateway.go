package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned by DeleteMessage when the target message is
// already gone. Callers treat it as success: there is nothing left to delete.
var ErrMessageNotFound = errors.New("message not found")

// Permissions describes what a restricted member may still do.
type Permissions struct {
	CanSendMessages bool
	CanSendMedia    bool
	CanSendOther    bool
}

// FullPermissions returns the permission set applied when lifting a mute.
func FullPermissions() Permissions {
	return Permissions{CanSendMessages: true, CanSendMedia: true, CanSendOther: true}
}

// Gateway is the narrow contract against the chat platform. Implementations
// must be safe for concurrent use.
type Gateway interface {
	// DeleteMessage removes a message. Returns ErrMessageNotFound when the
	// message was already deleted.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// SendMessage sends a text message and returns the platform message id.
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (int, error)

	// RestrictMember applies the given permissions to a member until the
	// given time. A zero until keeps the restriction until changed again.
	RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms Permissions) error

	// BanMember permanently removes a member from the chat.
	BanMember(ctx context.Context, chatID, userID int64) error

	// UnbanMember lifts a ban so the user may rejoin.
	UnbanMember(ctx context.Context, chatID, userID int64) error
}
