package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"
)

const helpText = `<b>Group guard commands</b>
/status — show a user's restriction state (reply to their message, or bare for yourself)
/warn [reason] — warn the user you reply to
/unwarn — clear the replied user's active warnings
/mute [minutes] — mute the replied user
/unmute — lift the replied user's mute
/ban — ban the replied user
/unban — lift the replied user's ban
/clean — remove the bot's recent messages from this chat
/help — this message

Moderation commands require administrator rights and, except /status and /clean, a reply to a message from the target user.`

// handleCommand dispatches a parsed bot command.
func handleCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, cmd, args string) error {
	chatID := message.Chat.ID

	if cmd == "help" {
		sendEphemeralReply(ctx, chatID, message.MessageID, helpText)
		return nil
	}

	if message.Chat.Type == "private" {
		sendEphemeralReply(ctx, chatID, message.MessageID, "This command only works inside a group.")
		return nil
	}

	admin, err := isUserAdmin(ctx, bot, chatID, message.From.ID)
	if err != nil {
		logger.Warningf("admin check failed for user %d in chat %d: %v", message.From.ID, chatID, err)
		sendEphemeralReply(ctx, chatID, message.MessageID, "Could not verify administrator rights, try again.")
		return nil
	}
	if !admin {
		sendEphemeralReply(ctx, chatID, message.MessageID, "Only administrators can use this command.")
		return nil
	}

	switch cmd {
	case "status":
		return handleStatusCommand(ctx, message)
	case "clean":
		count := guardian.PurgePreviousMessages(ctx, chatID, message.MessageID)
		sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("Removed %d bot message(s).", count))
		return nil
	}

	target := replyTarget(message)
	if target == nil {
		sendEphemeralReply(ctx, chatID, message.MessageID, "Reply to a message from the target user first.")
		return nil
	}

	issuedBy := strconv.FormatInt(message.From.ID, 10)
	switch cmd {
	case "warn":
		return handleWarnCommand(ctx, chatID, message, *target, args)
	case "unwarn":
		cleared, err := guardian.ClearWarnings(target.ID, chatID, issuedBy)
		if err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, "clear warnings", err)
			return nil
		}
		if cleared == 0 {
			sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("%s has no active warnings.", linkedUserName(*target)))
		} else {
			sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("Cleared %d warning(s) for %s.", cleared, linkedUserName(*target)))
		}
	case "mute":
		duration := time.Duration(globalConfig.Moderation.MuteDurationMins) * time.Minute
		if mins, convErr := strconv.Atoi(args); convErr == nil && mins > 0 {
			duration = time.Duration(mins) * time.Minute
		}
		if err := guardian.MuteFor(ctx, target.ID, chatID, duration, "muted by admin", issuedBy); err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, "mute", err)
			return nil
		}
		sendEphemeralReply(ctx, chatID, message.MessageID,
			fmt.Sprintf("Muted %s for %s.", linkedUserName(*target), duration))
	case "unmute":
		if err := guardian.EnforceAction(ctx, models.ActionUnmute, target.ID, chatID, "", issuedBy); err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, "unmute", err)
			return nil
		}
		sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("Unmuted %s.", linkedUserName(*target)))
	case "ban":
		if err := guardian.EnforceAction(ctx, models.ActionBan, target.ID, chatID, "banned by admin", issuedBy); err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, "ban", err)
			return nil
		}
		sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("Banned %s.", linkedUserName(*target)))
	case "unban":
		if err := guardian.EnforceAction(ctx, models.ActionUnban, target.ID, chatID, "", issuedBy); err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, "unban", err)
			return nil
		}
		sendEphemeralReply(ctx, chatID, message.MessageID, fmt.Sprintf("Unbanned %s.", linkedUserName(*target)))
	}
	return nil
}

// handleWarnCommand records a manual warning and enforces whatever step the
// escalation table returns for the new count.
func handleWarnCommand(ctx *th.Context, chatID int64, message telego.Message, target telego.User, args string) error {
	reason := args
	if reason == "" {
		reason = "warned by admin"
	}

	result, err := guardian.RecordWarning(target.ID, chatID, reason)
	if err != nil {
		reportCommandFailure(ctx, chatID, message.MessageID, "warn", err)
		return nil
	}

	notice := fmt.Sprintf("⚠️ %s warned (%d active): %s.", linkedUserName(target), result.ActiveCount, reason)
	if result.Action != models.ActionNone {
		issuedBy := strconv.FormatInt(message.From.ID, 10)
		if err := guardian.EnforceAction(ctx, result.Action, target.ID, chatID, reason, issuedBy); err != nil {
			reportCommandFailure(ctx, chatID, message.MessageID, string(result.Action), err)
			return nil
		}
		notice += fmt.Sprintf(" Applied: %s.", result.Action)
	}
	sendEphemeralReply(ctx, chatID, message.MessageID, notice)
	return nil
}

// handleStatusCommand reports the restriction state of the replied user, or
// of the caller when the command is not a reply.
func handleStatusCommand(ctx *th.Context, message telego.Message) error {
	chatID := message.Chat.ID
	target := replyTarget(message)
	if target == nil {
		target = message.From
	}

	status, err := guardian.RestrictionStatus(ctx, target.ID, chatID)
	if err != nil {
		reportCommandFailure(ctx, chatID, message.MessageID, "look up status", err)
		return nil
	}

	if status == nil || !status.Restricted {
		sendEphemeralReply(ctx, chatID, message.MessageID,
			fmt.Sprintf("%s has no active restriction.%s%s",
				linkedUserName(*target), historySummary(target.ID, chatID), systemSummary()))
		return nil
	}

	state := "restricted"
	switch status.Type {
	case models.ActionMute:
		state = "muted"
	case models.ActionBan:
		state = "banned"
	}
	notice := fmt.Sprintf("%s is currently %s", linkedUserName(*target), state)
	if status.ExpiresAt != nil {
		notice += fmt.Sprintf(" until %s", status.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	} else {
		notice += " permanently"
	}
	sendEphemeralReply(ctx, chatID, message.MessageID,
		notice+"."+historySummary(target.ID, chatID)+systemSummary())
	return nil
}

// systemSummary renders the registry health counters shown to admins.
func systemSummary() string {
	stats := GetProcessingStats()
	return fmt.Sprintf("\n\nSystem: %d pending deletions, %d flood windows, %d dedup entries, %d violations found.",
		stats["pending_deletions"], stats["flood_windows"], stats["dedup_entries"], stats["violations_found"])
}

// historySummary renders the subject's recent enforcement records, or an
// empty string when there is nothing to show.
func historySummary(userID, chatID int64) string {
	actions, err := guardian.ModerationHistory(userID, chatID, 3)
	if err != nil {
		logger.Warningf("failed to load moderation history for user %d in chat %d: %v", userID, chatID, err)
		return ""
	}
	if len(actions) == 0 {
		return ""
	}

	summary := "\nRecent actions:"
	for _, a := range actions {
		summary += fmt.Sprintf("\n• %s — %s", a.IssuedAt.UTC().Format("2006-01-02"), a.Type)
		if a.Reason != "" {
			summary += " (" + a.Reason + ")"
		}
	}
	return summary
}

func replyTarget(message telego.Message) *telego.User {
	if message.ReplyToMessage == nil || message.ReplyToMessage.From == nil {
		return nil
	}
	if message.ReplyToMessage.From.IsBot {
		return nil
	}
	return message.ReplyToMessage.From
}

func reportCommandFailure(ctx *th.Context, chatID int64, replyTo int, what string, err error) {
	incrementErrorCount()
	logger.Errorf("failed to %s in chat %d: %v", what, chatID, err)
	sendEphemeralReply(ctx, chatID, replyTo, fmt.Sprintf("Failed to %s: %v", what, err))
}
