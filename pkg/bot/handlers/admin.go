package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/regen"
)

func (h *Handlers) HandleRegenerate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleRegenerate") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	if !h.isAdmin(userID) {
		reply(ctx, b, chatID, "This command is for administrators only.")
		return
	}

	var bookID *int64
	args := commandArgs(update.Message.Text)
	switch len(args) {
	case 0:
	case 1:
		id, ok := parsePositiveInt(args[0])
		if !ok {
			reply(ctx, b, chatID, "Usage: /regenerate [book_id]")
			return
		}
		bookID = &id
	default:
		reply(ctx, b, chatID, "Usage: /regenerate [book_id]")
		return
	}

	logger.Info("regeneration requested", "user_id", userID, "book_id", bookID)
	report, err := h.Regen.RegenerateAll(ctx, bookID)
	if errors.Is(err, domain.ErrNotFound) {
		reply(ctx, b, chatID, fmt.Sprintf("Book %d does not exist.", *bookID))
		return
	}
	if err != nil && !report.Canceled {
		logger.Error("regeneration failed", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Regeneration failed. Please check the logs.")
		return
	}
	reply(ctx, b, chatID, formatReport(report))
}

func formatReport(r regen.Report) string {
	var sb strings.Builder
	if r.Canceled {
		sb.WriteString("Regeneration canceled.\n")
	} else {
		sb.WriteString("Regeneration finished.\n")
	}
	fmt.Fprintf(&sb, "Scopes regenerated: %d\nScopes skipped: %d\nDistractor sets: %d", r.ScopesRegenerated, r.ScopesSkipped, r.DistractorSets)
	if len(r.Failures) > 0 {
		fmt.Fprintf(&sb, "\nFailures: %d", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "\n- %s %d (%s)", f.Kind, f.ID, f.Step)
		}
	}
	return sb.String()
}

func (h *Handlers) HandleSweep(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleSweep") {
		return
	}
	chatID := update.Message.Chat.ID
	if !h.isAdmin(update.Message.From.ID) {
		reply(ctx, b, chatID, "This command is for administrators only.")
		return
	}

	codes, err := h.FriendBattles.SweepExpired(ctx)
	if err != nil {
		reply(ctx, b, chatID, "Sweep failed. Please check the logs.")
		return
	}
	plays, err := h.Battles.SweepExpired(ctx)
	if err != nil {
		reply(ctx, b, chatID, "Sweep failed. Please check the logs.")
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("Removed %d expired battle codes and %d expired battle plays.", codes, plays))
}
