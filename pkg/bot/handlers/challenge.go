package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/friendbattle"
	"github.com/smith3v/vocab-battle/pkg/logger"
)

const expiryLayout = "2006-01-02 15:04 UTC"

func (h *Handlers) HandleChallenge(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleChallenge") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	scope, ok := parseScopeArgs(commandArgs(update.Message.Text))
	if !ok {
		reply(ctx, b, chatID, "Usage: /challenge <topic|book> <id>")
		return
	}
	kind, id := scope.Kind, scope.ID

	s, err := h.Sessions.GetRandomSession(ctx, scope)
	if errors.Is(err, domain.ErrNotFound) {
		reply(ctx, b, chatID, fmt.Sprintf("There are no battle sessions for %s %d yet.", kind, id))
		return
	}
	if err != nil {
		logger.Error("failed to pick battle session", "user_id", userID, "scope", scope.String(), "error", err)
		reply(ctx, b, chatID, "Failed to create the battle. Please try again later.")
		return
	}

	fb, err := h.FriendBattles.Create(ctx, userID, s.Ref())
	if err != nil {
		logger.Error("failed to create friend battle", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Failed to create the battle. Please try again later.")
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("Battle code: %s\nShare it with a friend; they join with /join %s.\nThe code expires at %s.\nYour questions follow.",
		fb.Code, fb.Code, fb.ExpiresAt.UTC().Format(expiryLayout)))
	h.startFriendPlay(ctx, b, chatID, userID, s.Ref(), fb.Code)
}

func (h *Handlers) HandleJoin(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleJoin") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, chatID, "Usage: /join <code>")
		return
	}

	fb, err := h.FriendBattles.Claim(ctx, args[0], userID)
	switch {
	case errors.Is(err, domain.ErrAlreadyClaimed):
		reply(ctx, b, chatID, "This battle already has an opponent.")
		return
	case errors.Is(err, domain.ErrNotFound):
		reply(ctx, b, chatID, "This battle code is unknown or has expired.")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		reply(ctx, b, chatID, "You cannot join your own battle.")
		return
	case err != nil:
		logger.Error("failed to join friend battle", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Failed to join the battle. Please try again later.")
		return
	}

	ref := friendbattle.SessionRef(fb)
	reply(ctx, b, fb.CreatorID, fmt.Sprintf("Player %d accepted your battle %s.", userID, fb.Code))
	if ref.IsAdHoc() {
		reply(ctx, b, chatID, fmt.Sprintf("You joined the battle of player %d: an ad-hoc battle.", fb.CreatorID))
		return
	}
	s, err := h.Sessions.GetSession(ctx, ref.Scope(), ref.Number)
	if err != nil {
		logger.Warn("claimed battle session is gone", "code", fb.Code, "error", err)
		reply(ctx, b, chatID, fmt.Sprintf("You joined the battle of player %d, but its session is no longer available.", fb.CreatorID))
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("You joined the battle of player %d: %s %d, session %d (%d words).",
		fb.CreatorID, ref.Kind, ref.ScopeID, s.Number, len(s.WordIDs)))
	h.startFriendPlay(ctx, b, chatID, userID, ref, fb.Code)
}
