package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
)

const historyLayout = "2006-01-02 15:04"

func (h *Handlers) HandleStats(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleStats") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	s, err := h.Stats.GetUserStatistics(ctx, userID)
	if err != nil {
		logger.Error("failed to load statistics", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Failed to load your statistics. Please try again later.")
		return
	}
	if s.Battles == 0 {
		reply(ctx, b, chatID, "You have not played any battles yet. Try /battle or /challenge.")
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("Battles: %d\nWins: %d\nLosses: %d\nTies: %d\nTotal score: %d",
		s.Battles, s.Wins, s.Losses, s.Ties, s.TotalScore))
}

func (h *Handlers) HandleLeaderboard(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleLeaderboard") {
		return
	}
	chatID := update.Message.Chat.ID

	rows, err := h.Stats.GetLeaderboard(ctx, leaderboardSize)
	if err != nil {
		logger.Error("failed to load leaderboard", "error", err)
		reply(ctx, b, chatID, "Failed to load the leaderboard. Please try again later.")
		return
	}
	if len(rows) == 0 {
		reply(ctx, b, chatID, "No battles have been played yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Leaderboard:\n")
	for i, row := range rows {
		marker := ""
		if row.UserID == update.Message.From.ID {
			marker = " (you)"
		}
		fmt.Fprintf(&sb, "%d. Player %d%s: %d wins, score %d\n", i+1, row.UserID, marker, row.Wins, row.TotalScore)
	}
	reply(ctx, b, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleHistory lists recent battles, or with a player id the caller's record
// against that player.
func (h *Handlers) HandleHistory(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleHistory") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	switch len(args) {
	case 0:
	case 1:
		other, ok := parsePositiveInt(args[0])
		if !ok || other == userID {
			reply(ctx, b, chatID, "Usage: /history [player_id]")
			return
		}
		h2h, err := h.Stats.HeadToHead(ctx, userID, other)
		if err != nil {
			logger.Error("failed to load head to head", "user_id", userID, "other_id", other, "error", err)
			reply(ctx, b, chatID, "Failed to load your history. Please try again later.")
			return
		}
		reply(ctx, b, chatID, fmt.Sprintf("Against player %d: %d battles, %d wins, %d losses, %d ties.",
			other, h2h.Battles, h2h.WinsA, h2h.WinsB, h2h.Ties))
		return
	default:
		reply(ctx, b, chatID, "Usage: /history [player_id]")
		return
	}

	records, err := h.Stats.GetHistory(ctx, userID, historySize)
	if err != nil {
		logger.Error("failed to load history", "user_id", userID, "error", err)
		reply(ctx, b, chatID, "Failed to load your history. Please try again later.")
		return
	}
	if len(records) == 0 {
		reply(ctx, b, chatID, "No battles yet. Try /battle.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Recent battles:\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "%s  %s: %s\n", r.CompletedAt.UTC().Format(historyLayout), sessionLabel(r), historyLine(r, userID))
	}
	reply(ctx, b, chatID, strings.TrimRight(sb.String(), "\n"))
}

func sessionLabel(r db.BattleRecord) string {
	if domain.ScopeKind(r.SessionKind) == domain.ScopeAdHoc {
		return "ad-hoc"
	}
	return fmt.Sprintf("%s %d #%d", r.SessionKind, r.SessionScopeID, r.SessionNumber)
}

func historyLine(r db.BattleRecord, viewer int64) string {
	if r.Player2ID == nil {
		return fmt.Sprintf("solo, score %d", r.Player1Score)
	}
	mine, theirs, other := r.Player1Score, r.Player2Score, *r.Player2ID
	if viewer != r.Player1ID {
		mine, theirs, other = r.Player2Score, r.Player1Score, r.Player1ID
	}
	result := "tie"
	switch {
	case r.WinnerID != nil && *r.WinnerID == viewer:
		result = "won"
	case r.WinnerID != nil:
		result = "lost"
	}
	return fmt.Sprintf("you %d vs player %d %d (%s)", mine, other, theirs, result)
}

// HandleProgress reports how much of a topic the caller has mastered and which
// words need practice.
func (h *Handlers) HandleProgress(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandleProgress") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, chatID, "Usage: /progress <topic_id>")
		return
	}
	topicID, ok := parsePositiveInt(args[0])
	if !ok {
		reply(ctx, b, chatID, "Usage: /progress <topic_id>")
		return
	}

	words, err := h.Words.ResolveWords(ctx, topicID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && len(words) == 0) {
		reply(ctx, b, chatID, fmt.Sprintf("Topic %d has no words.", topicID))
		return
	}
	if err != nil {
		logger.Error("failed to load topic words", "topic_id", topicID, "error", err)
		reply(ctx, b, chatID, "Failed to load your progress. Please try again later.")
		return
	}
	mastered, err := h.Mastery.GetMasteredWords(ctx, userID, topicID)
	if err != nil {
		logger.Error("failed to load mastered words", "user_id", userID, "topic_id", topicID, "error", err)
		reply(ctx, b, chatID, "Failed to load your progress. Please try again later.")
		return
	}
	weak, err := h.Mastery.GetWeakWords(ctx, userID, topicID, weakWordsShown)
	if err != nil {
		logger.Error("failed to load weak words", "user_id", userID, "topic_id", topicID, "error", err)
		reply(ctx, b, chatID, "Failed to load your progress. Please try again later.")
		return
	}

	text := fmt.Sprintf("Topic %d: %d of %d words mastered.", topicID, len(mastered), len(words))
	weak, _ = lo.Difference(weak, mastered)
	if len(weak) > 0 {
		byID := lo.KeyBy(words, func(w domain.Word) int64 { return w.ID })
		names := lo.FilterMap(weak, func(id int64, _ int) (string, bool) {
			w, ok := byID[id]
			return w.Text, ok
		})
		text += "\nPractice next: " + strings.Join(names, ", ")
	}
	reply(ctx, b, chatID, text)
}
