package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/ui"
)

// parseScopeArgs reads "<topic|book> <id>".
func parseScopeArgs(args []string) (domain.Scope, bool) {
	if len(args) != 2 {
		return domain.Scope{}, false
	}
	kind, err := domain.ParseScopeKind(args[0])
	id, ok := parsePositiveInt(args[1])
	if err != nil || !ok || kind == domain.ScopeAdHoc {
		return domain.Scope{}, false
	}
	return domain.Scope{Kind: kind, ID: id}, true
}

func (h *Handlers) HandleBattle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleBattle") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	scope, ok := parseScopeArgs(commandArgs(update.Message.Text))
	if !ok {
		reply(ctx, b, chatID, "Usage: /battle <topic|book> <id>")
		return
	}
	s, err := h.Sessions.GetRandomSession(ctx, scope)
	if errors.Is(err, domain.ErrNotFound) {
		reply(ctx, b, chatID, fmt.Sprintf("There are no battle sessions for %s %d yet.", scope.Kind, scope.ID))
		return
	}
	if err != nil {
		logger.Error("failed to pick battle session", "user_id", userID, "scope", scope.String(), "error", err)
		reply(ctx, b, chatID, "Failed to start the battle. Please try again later.")
		return
	}

	play, err := h.Battles.Start(ctx, userID, chatID, s.Ref(), "")
	if err != nil {
		logger.Error("failed to start battle", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Failed to start the battle. Please try again later.")
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("Battle: %s %d, session %d (%d questions).", scope.Kind, scope.ID, s.Number, len(play.WordIDs)))
	h.sendBattleQuestion(ctx, b, chatID, play)
}

// sendBattleQuestion sends the play's open question.
func (h *Handlers) sendBattleQuestion(ctx context.Context, b *bot.Bot, chatID int64, play db.BattlePlay) {
	if play.Position >= len(play.WordIDs) {
		return
	}
	questions, err := h.Quiz.Build(ctx, []int64{play.WordIDs[play.Position]})
	if err != nil {
		logger.Error("failed to build battle question", "play_id", play.ID, "error", err)
		reply(ctx, b, chatID, "Failed to load the next question. Please try again later.")
		return
	}
	if len(questions) == 0 {
		reply(ctx, b, chatID, "This battle is no longer available.")
		return
	}
	q := questions[0]

	text := fmt.Sprintf("⚔️ %d/%d  %s → ?", play.Position+1, len(play.WordIDs), q.Prompt)
	if err := sendQuestion(ctx, b, chatID, text, q, func(slot int) (string, error) {
		return ui.BuildBattleCallback(ui.BattleAnswer{PlayID: play.ID, Position: play.Position, Slot: slot})
	}); err != nil {
		logger.Error("failed to send battle question", "play_id", play.ID, "error", err)
	}
}

func (h *Handlers) HandleBattleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		logger.Error("invalid update in HandleBattleCallback")
		return
	}
	callbackID := update.CallbackQuery.ID
	userID := update.CallbackQuery.From.ID

	answer, err := ui.ParseBattleCallback(update.CallbackQuery.Data)
	if err != nil {
		answerCallback(ctx, b, callbackID, "Not active")
		return
	}
	message := callbackMessage(update)
	if message == nil {
		answerCallback(ctx, b, callbackID, "Message missing")
		return
	}

	play, err := h.Battles.Get(ctx, answer.PlayID)
	if err != nil {
		answerCallback(ctx, b, callbackID, "This battle has expired")
		return
	}
	if play.UserID != userID {
		answerCallback(ctx, b, callbackID, "This battle is not yours")
		return
	}
	if play.FinishedAt != nil || answer.Position != play.Position {
		answerCallback(ctx, b, callbackID, "Already answered")
		return
	}
	correct, err := h.Quiz.Check(ctx, play.WordIDs[answer.Position], answer.Slot)
	if err != nil {
		answerCallback(ctx, b, callbackID, "Not active")
		return
	}

	out, err := h.Battles.Answer(ctx, userID, play.ID, answer.Position, correct)
	if errors.Is(err, domain.ErrConflict) {
		answerCallback(ctx, b, callbackID, "Already answered")
		return
	}
	if err != nil {
		logger.Error("failed to record battle answer", "play_id", play.ID, "user_id", userID, "error", err)
		answerCallback(ctx, b, callbackID, "Failed to save your answer")
		return
	}

	closeQuestion(ctx, b, message, fmt.Sprintf("%s. Score %d/%d", verdict(correct), out.Play.Score, out.Play.Position))
	answerCallback(ctx, b, callbackID, "")

	chatID := message.Chat.ID
	switch {
	case !out.Finished():
		h.sendBattleQuestion(ctx, b, chatID, out.Play)
	case out.Waiting():
		reply(ctx, b, chatID, fmt.Sprintf("Battle finished: %d/%d correct. Waiting for your opponent.", out.Play.Score, len(out.Play.WordIDs)))
	case out.Opponent == nil:
		reply(ctx, b, chatID, fmt.Sprintf("Battle finished: %d/%d correct.", out.Play.Score, len(out.Play.WordIDs)))
	default:
		reply(ctx, b, chatID, duelSummary(*out.Record, userID))
		reply(ctx, b, out.Opponent.ChatID, duelSummary(*out.Record, out.Opponent.UserID))
	}
}

// duelSummary describes a two-player record from viewer's side.
func duelSummary(r db.BattleRecord, viewer int64) string {
	mine, theirs, other := r.Player1Score, r.Player2Score, int64(0)
	if r.Player2ID != nil {
		other = *r.Player2ID
	}
	if viewer != r.Player1ID {
		mine, theirs, other = r.Player2Score, r.Player1Score, r.Player1ID
	}
	result := "It's a tie."
	switch {
	case r.WinnerID != nil && *r.WinnerID == viewer:
		result = "You won!"
	case r.WinnerID != nil:
		result = "You lost."
	}
	return fmt.Sprintf("Battle finished: you %d, player %d %d. %s", mine, other, theirs, result)
}

// startFriendPlay starts userID's play of a friend battle and sends its first
// question.
func (h *Handlers) startFriendPlay(ctx context.Context, b *bot.Bot, chatID, userID int64, ref domain.SessionRef, code string) {
	play, err := h.Battles.Start(ctx, userID, chatID, ref, code)
	if err != nil {
		logger.Error("failed to start friend battle play", "user_id", userID, "code", code, "error", err)
		reply(ctx, b, chatID, "Failed to start your battle. Please try again later.")
		return
	}
	h.sendBattleQuestion(ctx, b, chatID, play)
}
