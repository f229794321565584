// Package handler routes Telegram updates into the guard services.
package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/guard"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/scheduler"
)

var (
	globalConfig *config.Config
	guardian     *guard.Guard
	gw           gateway.Gateway
)

// Initialize wires the handler package with its collaborators.
func Initialize(cfg *config.Config, g *guard.Guard, msgGateway gateway.Gateway) {
	globalConfig = cfg
	guardian = g
	gw = msgGateway
}

// SetupMessageHandlers configures all bot message and update handlers
func SetupMessageHandlers(bh *th.BotHandler, bot *telego.Bot) {
	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		return handleIncomingMessage(ctx, bot, message)
	})

	bh.Handle(func(ctx *th.Context, update telego.Update) error {
		return handleChatMemberUpdate(ctx, bot, update)
	})
}

// parseCommand splits "/cmd@BotName arg arg" into the bare command and its
// argument string. Returns "" when the text is not a command.
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd := text
	args := ""
	if idx := strings.IndexAny(text, " \n"); idx >= 0 {
		cmd = text[:idx]
		args = strings.TrimSpace(text[idx+1:])
	}
	if idx := strings.Index(cmd, "@"); idx >= 0 {
		cmd = cmd[:idx]
	}
	return strings.TrimPrefix(cmd, "/"), args
}

// isUserAdmin checks if a user is an administrator of the chat
func isUserAdmin(ctx context.Context, bot *telego.Bot, chatID int64, userID int64) (bool, error) {
	member, err := bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		return false, err
	}

	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}

// sendEphemeralReply sends a bot reply, tracks it for bulk purge and
// schedules its timed removal.
func sendEphemeralReply(ctx context.Context, chatID int64, replyTo int, text string) {
	messageID, err := gw.SendMessage(ctx, chatID, text, replyTo)
	if err != nil {
		logger.Warningf("failed to send reply in chat %d: %v", chatID, err)
		return
	}

	guardian.TrackOutboundMessage(chatID, messageID)
	delay := time.Duration(globalConfig.Cleaner.BotDeleteSecs) * time.Second
	guardian.ScheduleEphemeralDeletion(chatID, messageID, scheduler.CategoryBot, delay)
}

// linkedUserName returns an HTML mention link for a user.
func linkedUserName(user telego.User) string {
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}

	displayName = strings.ReplaceAll(displayName, "&", "&amp;")
	displayName = strings.ReplaceAll(displayName, "<", "&lt;")
	displayName = strings.ReplaceAll(displayName, ">", "&gt;")

	return "<a href=\"tg://user?id=" + itoa(user.ID) + "\">" + displayName + "</a>"
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
