// Package handlers is the Telegram command surface over the content core.
package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/battle"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/friendbattle"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/mastery"
	"github.com/smith3v/vocab-battle/pkg/partition"
	"github.com/smith3v/vocab-battle/pkg/quiz"
	"github.com/smith3v/vocab-battle/pkg/regen"
	"github.com/smith3v/vocab-battle/pkg/session"
	"github.com/smith3v/vocab-battle/pkg/stats"
	"github.com/smith3v/vocab-battle/pkg/ui"
)

const (
	leaderboardSize = 10
	historySize     = 5
	weakWordsShown  = 5
)

type Handlers struct {
	Words         catalog.Store
	Stats         *stats.Service
	FriendBattles *friendbattle.Registry
	Battles       *battle.Runner
	Sessions      *session.Generator
	Parts         *partition.Engine
	Quiz          *quiz.Builder
	Mastery       *mastery.Tracker
	Regen         *regen.Coordinator
	AdminIDs      []int64
}

func (h *Handlers) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact, h.HandleStats)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/leaderboard", bot.MatchTypeExact, h.HandleLeaderboard)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/history", bot.MatchTypePrefix, h.HandleHistory)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/progress", bot.MatchTypePrefix, h.HandleProgress)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/battle", bot.MatchTypePrefix, h.HandleBattle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/challenge", bot.MatchTypePrefix, h.HandleChallenge)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/join", bot.MatchTypePrefix, h.HandleJoin)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/practice", bot.MatchTypePrefix, h.HandlePractice)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/regenerate", bot.MatchTypePrefix, h.HandleRegenerate)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/sweep", bot.MatchTypeExact, h.HandleSweep)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, ui.AnswerCallbackPrefix, bot.MatchTypePrefix, h.HandleAnswerCallback)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, ui.BattleCallbackPrefix, bot.MatchTypePrefix, h.HandleBattleCallback)
}

func DefaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		logger.Error("received invalid update in DefaultHandler")
		return
	}
	if update.Message.Chat.ID == 0 {
		logger.Error("chat ID is zero in DefaultHandler")
		return
	}

	reply(ctx, b, update.Message.Chat.ID, "Commands:\n"+
		"* /practice <topic_id> <part>: quiz yourself on a learning part.\n"+
		"* /progress <topic_id>: your mastery of a topic.\n"+
		"* /battle <topic|book> <id>: play a battle on your own.\n"+
		"* /challenge <topic|book> <id>: create a battle code for a friend.\n"+
		"* /join <code>: accept a friend's battle.\n"+
		"* /stats: your battle record.\n"+
		"* /history [player_id]: recent battles, or your record against a player.\n"+
		"* /leaderboard: the top players.")
}

// validMessage reports whether update carries a message with a sender and a
// chat, logging under name otherwise.
func validMessage(update *models.Update, name string) bool {
	if update == nil || update.Message == nil || update.Message.From == nil || update.Message.Chat.ID == 0 {
		logger.Error("invalid update in " + name)
		return false
	}
	return true
}

func reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

// commandArgs drops the command itself, including any @botname suffix.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// sendQuestion sends q with one button per option; data encodes the button
// for the option's canonical slot.
func sendQuestion(ctx context.Context, b *bot.Bot, chatID int64, text string, q quiz.Question, data func(slot int) (string, error)) error {
	rows := make([][]models.InlineKeyboardButton, 0, len(q.Options))
	for i, option := range q.Options {
		callback, err := data(q.Slots[i])
		if err != nil {
			return err
		}
		rows = append(rows, []models.InlineKeyboardButton{{Text: option, CallbackData: callback}})
	}
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	return err
}

// closeQuestion replaces an answered question with verdict and drops its
// buttons.
func closeQuestion(ctx context.Context, b *bot.Bot, message *models.Message, verdict string) {
	if _, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    message.Chat.ID,
		MessageID: message.ID,
		Text:      verdict,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{},
		},
	}); err != nil {
		logger.Error("failed to edit answered question", "chat_id", message.Chat.ID, "error", err)
	}
}

// callbackMessage returns the message a callback was tapped on, or nil when
// it is inaccessible.
func callbackMessage(update *models.Update) *models.Message {
	message := update.CallbackQuery.Message
	if message.Type != models.MaybeInaccessibleMessageTypeMessage || message.Message == nil || message.Message.Chat.ID == 0 {
		return nil
	}
	return message.Message
}

func answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		logger.Error("failed to answer callback query", "error", err)
	}
}

func verdict(correct bool) string {
	if correct {
		return "✅ Correct"
	}
	return "❌ Wrong"
}

func parsePositiveInt(value string) (int64, bool) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (h *Handlers) isAdmin(userID int64) bool {
	return lo.Contains(h.AdminIDs, userID)
}
