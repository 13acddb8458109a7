package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/mastery"
	"github.com/smith3v/vocab-battle/pkg/ui"
)

func (h *Handlers) HandlePractice(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update, "HandlePractice") {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 2 {
		reply(ctx, b, chatID, "Usage: /practice <topic_id> <part>")
		return
	}
	topicID, okTopic := parsePositiveInt(args[0])
	part, okPart := parsePositiveInt(args[1])
	if !okTopic || !okPart {
		reply(ctx, b, chatID, "Usage: /practice <topic_id> <part>")
		return
	}

	sent, err := h.sendPracticeQuestion(ctx, b, chatID, userID, topicID, int(part), 0)
	if err != nil {
		logger.Error("failed to start practice", "user_id", userID, "topic_id", topicID, "error", err)
		reply(ctx, b, chatID, "Failed to start the practice. Please try again later.")
		return
	}
	if !sent {
		reply(ctx, b, chatID, fmt.Sprintf("Topic %d has no learning part %d.", topicID, part))
	}
}

// sendPracticeQuestion sends the index-th question of the part to userID. It
// reports false when the part has no question at that index.
func (h *Handlers) sendPracticeQuestion(ctx context.Context, b *bot.Bot, chatID, userID, topicID int64, part, index int) (bool, error) {
	words, err := h.Parts.GetPartWords(ctx, topicID, part)
	if err != nil {
		return false, err
	}
	if index >= len(words) {
		return false, nil
	}
	questions, err := h.Quiz.Build(ctx, []int64{words[index].ID})
	if err != nil {
		return false, err
	}
	if len(questions) == 0 {
		return false, nil
	}
	q := questions[0]

	text := fmt.Sprintf("%d/%d  %s → ?", index+1, len(words), q.Prompt)
	err = sendQuestion(ctx, b, chatID, text, q, func(slot int) (string, error) {
		return ui.BuildAnswerCallback(ui.Answer{
			TopicID: topicID,
			Part:    part,
			Index:   index,
			WordID:  q.WordID,
			Slot:    slot,
			UserID:  userID,
		})
	})
	return err == nil, err
}

func (h *Handlers) HandleAnswerCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		logger.Error("invalid update in HandleAnswerCallback")
		return
	}
	callbackID := update.CallbackQuery.ID
	userID := update.CallbackQuery.From.ID

	answer, err := ui.ParseAnswerCallback(update.CallbackQuery.Data)
	if err != nil {
		answerCallback(ctx, b, callbackID, "Not active")
		return
	}
	if answer.UserID != userID {
		answerCallback(ctx, b, callbackID, "This question is for another player")
		return
	}
	message := callbackMessage(update)
	if message == nil {
		answerCallback(ctx, b, callbackID, "Message missing")
		return
	}

	words, err := h.Parts.GetPartWords(ctx, answer.TopicID, answer.Part)
	if err != nil || answer.Index >= len(words) || words[answer.Index].ID != answer.WordID {
		answerCallback(ctx, b, callbackID, "Not active")
		return
	}
	correct, err := h.Quiz.Check(ctx, answer.WordID, answer.Slot)
	if err != nil {
		answerCallback(ctx, b, callbackID, "Not active")
		return
	}

	progress, err := h.Mastery.RecordAnswer(ctx, userID, answer.WordID, correct)
	if err != nil {
		logger.Error("failed to record practice answer", "user_id", userID, "word_id", answer.WordID, "error", err)
		answerCallback(ctx, b, callbackID, "Failed to save your answer")
		return
	}

	closeQuestion(ctx, b, message, fmt.Sprintf("%s. Mastery %d/%d", verdict(correct), progress.MasteryLevel, mastery.MaxLevel))
	answerCallback(ctx, b, callbackID, "")

	chatID := message.Chat.ID
	sent, err := h.sendPracticeQuestion(ctx, b, chatID, userID, answer.TopicID, answer.Part, answer.Index+1)
	if err != nil {
		logger.Error("failed to send next practice question", "user_id", userID, "error", err)
		return
	}
	if !sent {
		reply(ctx, b, chatID, fmt.Sprintf("Part %d of topic %d complete.", answer.Part, answer.TopicID))
	}
}
