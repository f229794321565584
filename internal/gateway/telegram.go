package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

// defaultCallTimeout bounds every Bot API call issued through the adapter.
const defaultCallTimeout = 10 * time.Second

// TelegramGateway adapts a telego bot to the Gateway contract.
type TelegramGateway struct {
	bot     *telego.Bot
	timeout time.Duration
}

// NewTelegramGateway creates a gateway backed by the given bot.
func NewTelegramGateway(bot *telego.Bot) *TelegramGateway {
	return &TelegramGateway{bot: bot, timeout: defaultCallTimeout}
}

func (g *TelegramGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	})
	if err != nil && isMessageGone(err) {
		return ErrMessageNotFound
	}
	return err
}

func (g *TelegramGateway) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "HTML",
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}

	msg, err := g.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (g *TelegramGateway) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms Permissions) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &telego.RestrictChatMemberParams{
		ChatID:      telego.ChatID{ID: chatID},
		UserID:      userID,
		Permissions: toChatPermissions(perms),
	}
	if !until.IsZero() {
		params.UntilDate = until.Unix()
	}

	return g.bot.RestrictChatMember(ctx, params)
}

func (g *TelegramGateway) BanMember(ctx context.Context, chatID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.bot.BanChatMember(ctx, &telego.BanChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
}

func (g *TelegramGateway) UnbanMember(ctx context.Context, chatID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{
		ChatID:       telego.ChatID{ID: chatID},
		UserID:       userID,
		OnlyIfBanned: true,
	})
}

func toChatPermissions(perms Permissions) telego.ChatPermissions {
	return telego.ChatPermissions{
		CanSendMessages:       &perms.CanSendMessages,
		CanSendAudios:         &perms.CanSendMedia,
		CanSendDocuments:      &perms.CanSendMedia,
		CanSendPhotos:         &perms.CanSendMedia,
		CanSendVideos:         &perms.CanSendMedia,
		CanSendVideoNotes:     &perms.CanSendMedia,
		CanSendVoiceNotes:     &perms.CanSendMedia,
		CanSendPolls:          &perms.CanSendOther,
		CanSendOtherMessages:  &perms.CanSendOther,
		CanAddWebPagePreviews: &perms.CanSendOther,
	}
}

// isMessageGone reports whether the Bot API rejected a delete because the
// message no longer exists or cannot be found.
func isMessageGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message can't be deleted") ||
		strings.Contains(msg, "message_id_invalid")
}
