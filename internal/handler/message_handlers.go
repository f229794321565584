package handler

import (
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/scheduler"
)

// handleIncomingMessage dispatches a message update by chat type
func handleIncomingMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	incrementMessageCount()

	switch message.Chat.Type {
	case "private":
		return handlePrivateMessage(ctx, bot, message)
	case "group", "supergroup":
		return handleGroupMessage(ctx, bot, message)
	}
	return nil
}

// handleGroupMessage runs the moderation flow for a group message.
func handleGroupMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	chatID := message.Chat.ID
	if globalConfig.Bot.GroupID > 0 && chatID != globalConfig.Bot.GroupID {
		return nil
	}

	if len(message.NewChatMembers) > 0 {
		for _, member := range message.NewChatMembers {
			welcomeMember(ctx, chatID, member)
		}
		return nil
	}

	if message.From == nil || message.From.IsBot {
		return nil
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}

	if cmd, args := parseCommand(text); cmd != "" {
		incrementCommandCount()
		delay := time.Duration(globalConfig.Cleaner.CommandDeleteSecs) * time.Second
		guardian.ScheduleEphemeralDeletion(chatID, message.MessageID, scheduler.CategoryCommand, delay)
		return handleCommand(ctx, bot, message, cmd, args)
	}

	verdict, err := guardian.ProcessMessage(ctx, message.From.ID, chatID, text)
	if err != nil {
		incrementErrorCount()
		logger.Errorf("moderation flow failed for user %d in chat %d: %v", message.From.ID, chatID, err)
	}
	if !verdict.Violation {
		return nil
	}

	// Admins are exempt from automated moderation. The check runs only after
	// a violation is found to avoid an API call per clean message.
	if admin, err := isUserAdmin(ctx, bot, chatID, message.From.ID); err == nil && admin {
		return nil
	}

	incrementViolationCount()
	if err := gw.DeleteMessage(ctx, chatID, message.MessageID); err != nil {
		logger.Warningf("failed to delete message %d in chat %d: %v", message.MessageID, chatID, err)
	}

	notice := fmt.Sprintf("⚠️ %s, your message was removed: %s. Warning %d.",
		linkedUserName(*message.From), verdict.Reason, verdict.ActiveCount)
	if verdict.Enforced {
		notice += fmt.Sprintf(" Applied: %s.", verdict.Action)
	} else if err != nil {
		notice += " Enforcement failed, moderators have been notified via logs."
	}
	sendEphemeralReply(ctx, chatID, 0, notice)

	return nil
}

// handlePrivateMessage answers direct messages. Previous bot replies in the
// conversation are purged before responding so the chat holds at most one
// bot message at a time.
func handlePrivateMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if message.From == nil || message.From.IsBot {
		return nil
	}

	chatID := message.Chat.ID
	guardian.PurgePreviousMessages(ctx, chatID, 0)

	cmd, args := parseCommand(message.Text)
	if cmd != "" {
		incrementCommandCount()
		return handleCommand(ctx, bot, message, cmd, args)
	}

	messageID, err := gw.SendMessage(ctx, chatID, "I moderate group chats. Add me to a group as an administrator, or send /help for the command list.", message.MessageID)
	if err != nil {
		logger.Warningf("failed to reply in private chat %d: %v", chatID, err)
		return nil
	}
	guardian.TrackOutboundMessage(chatID, messageID)
	return nil
}

// handleChatMemberUpdate greets users reported through chat_member updates.
// The dedup guard keeps this from double-greeting users that also arrive via
// a new_chat_members service message.
func handleChatMemberUpdate(ctx *th.Context, bot *telego.Bot, update telego.Update) error {
	cm := update.ChatMember
	if cm == nil {
		return nil
	}
	if !cm.NewChatMember.MemberIsMember() || cm.OldChatMember.MemberIsMember() {
		return nil
	}

	welcomeMember(ctx, cm.Chat.ID, cm.NewChatMember.MemberUser())
	return nil
}

// welcomeMember sends a one-time greeting for a newly joined user.
func welcomeMember(ctx *th.Context, chatID int64, user telego.User) {
	if user.IsBot {
		return
	}

	key := fmt.Sprintf("welcome:%d:%d", chatID, user.ID)
	if !guardian.TryFirstTimeAction(key) {
		return
	}

	logger.Infof("welcoming user %d in chat %d", user.ID, chatID)
	notice := fmt.Sprintf("Welcome, %s! Please keep it civil: no links, no spam.", linkedUserName(user))
	sendEphemeralReply(ctx, chatID, 0, notice)
}
