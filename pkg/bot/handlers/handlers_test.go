package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/smith3v/vocab-battle/pkg/battle"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/distractor"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/friendbattle"
	"github.com/smith3v/vocab-battle/pkg/internal/testutil"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/mastery"
	"github.com/smith3v/vocab-battle/pkg/partition"
	"github.com/smith3v/vocab-battle/pkg/quiz"
	"github.com/smith3v/vocab-battle/pkg/regen"
	"github.com/smith3v/vocab-battle/pkg/session"
	"github.com/smith3v/vocab-battle/pkg/stats"
	"github.com/smith3v/vocab-battle/pkg/ui"
	"gorm.io/gorm"

	telegram "github.com/go-telegram/bot"
)

const adminID = 1

func newTestHandlers(t *testing.T) (*Handlers, *gorm.DB) {
	t.Helper()
	logger.SetLogLevel(logger.ERROR)
	gdb := testutil.SetupTestDB(t)
	store := catalog.NewGormStore(gdb)
	rng := rand.New(rand.NewSource(5))

	parts := partition.NewEngine(gdb, store)
	distractors := distractor.NewSelector(gdb, store, rng)
	sessions := session.NewGenerator(gdb, store, rng)
	tracker := mastery.NewTracker(gdb, store)
	statistics := stats.NewService(gdb)
	return &Handlers{
		Words:         store,
		Stats:         statistics,
		FriendBattles: friendbattle.NewRegistry(gdb, 0, sessions),
		Battles:       battle.NewRunner(gdb, sessions, tracker, statistics, 0),
		Sessions:      sessions,
		Parts:         parts,
		Quiz:          quiz.NewBuilder(distractors, rng),
		Mastery:       tracker,
		Regen: regen.NewCoordinator(store, parts, distractors, sessions, regen.Options{
			PartSize: 15, SessionCount: 2, SessionSize: 10,
		}),
		AdminIDs: []int64{adminID},
	}, gdb
}

func TestDefaultHandlerSendsHelp(t *testing.T) {
	logger.SetLogLevel(logger.ERROR)
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	DefaultHandler(context.Background(), b, newTestUpdate("hello", 100))

	got := client.lastMessageText(t)
	if !strings.Contains(got, "Commands:") || !strings.Contains(got, "/challenge") {
		t.Fatalf("expected commands message, got %q", got)
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	h.HandleStats(ctx, b, newTestUpdate("/stats", 42))
	if got := client.lastMessageText(t); !strings.Contains(got, "not played any battles") {
		t.Fatalf("expected empty stats message, got %q", got)
	}

	result := stats.BattleResult{
		Session:      domain.AdHocSession(),
		Participants: []int64{42, 43},
		Scores:       []int{7, 3},
	}
	result.WinnerID = stats.DecideWinner(result.Participants, result.Scores)
	if _, err := h.Stats.RecordBattle(ctx, result); err != nil {
		t.Fatalf("RecordBattle returned error: %v", err)
	}

	h.HandleStats(ctx, b, newTestUpdate("/stats", 42))
	got := client.lastMessageText(t)
	if !strings.Contains(got, "Battles: 1") || !strings.Contains(got, "Wins: 1") || !strings.Contains(got, "Total score: 7") {
		t.Fatalf("unexpected stats message: %q", got)
	}

	h.HandleLeaderboard(ctx, b, newTestUpdate("/leaderboard", 43))
	got = client.lastMessageText(t)
	if !strings.Contains(got, "1. Player 42: 1 wins, score 7") || !strings.Contains(got, "2. Player 43 (you)") {
		t.Fatalf("unexpected leaderboard: %q", got)
	}
}

func seedTopicWithSessions(t *testing.T, h *Handlers, gdb *gorm.DB, words int) db.Topic {
	t.Helper()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "animals", 1, words)
	if _, err := h.Sessions.CreateSessions(context.Background(), domain.TopicScope(topic.ID), 2, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	return topic
}

func TestHandleChallengeAndJoin(t *testing.T) {
	h, gdb := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)
	topic := seedTopicWithSessions(t, h, gdb, 12)

	h.HandleChallenge(ctx, b, newTestUpdate("/challenge chapter 1", 10))
	if got := client.lastMessageText(t); !strings.Contains(got, "Usage") {
		t.Fatalf("expected usage message, got %q", got)
	}

	h.HandleChallenge(ctx, b, newTestUpdate("/challenge book 999", 10))
	if got := client.lastMessageText(t); !strings.Contains(got, "no battle sessions") {
		t.Fatalf("expected no sessions message, got %q", got)
	}

	client.reset()
	h.HandleChallenge(ctx, b, newTestUpdate(fmt.Sprintf("/challenge topic %d", topic.ID), 10))
	created := client.sentTo(10)
	if len(created) != 2 || !strings.Contains(created[0], "Battle code:") || !strings.HasPrefix(created[1], "⚔️ 1/10") {
		t.Fatalf("expected battle code and the creator's first question, got %q", created)
	}
	var fb db.FriendBattle
	if err := gdb.Where("creator_id = ?", 10).First(&fb).Error; err != nil {
		t.Fatalf("expected stored friend battle: %v", err)
	}

	h.HandleJoin(ctx, b, newTestUpdate("/join "+fb.Code, 10))
	if got := client.lastMessageText(t); !strings.Contains(got, "own battle") {
		t.Fatalf("expected own battle warning, got %q", got)
	}

	client.reset()
	h.HandleJoin(ctx, b, newTestUpdate("/join "+strings.ToLower(fb.Code), 20))
	joined := client.sentTo(20)
	want := fmt.Sprintf("You joined the battle of player 10: topic %d, session %d (10 words).", topic.ID, fb.SessionNumber)
	if len(joined) != 2 || joined[0] != want || !strings.HasPrefix(joined[1], "⚔️ 1/10") {
		t.Fatalf("expected join message and first question, got %q", joined)
	}
	notified := client.sentTo(10)
	if len(notified) != 1 || !strings.Contains(notified[0], "Player 20 accepted your battle "+fb.Code) {
		t.Fatalf("expected creator notification, got %v", notified)
	}

	h.HandleJoin(ctx, b, newTestUpdate("/join "+fb.Code, 30))
	if got := client.lastMessageText(t); !strings.Contains(got, "already has an opponent") {
		t.Fatalf("expected already claimed message, got %q", got)
	}
	h.HandleJoin(ctx, b, newTestUpdate("/join ZZZZ0000", 30))
	if got := client.lastMessageText(t); !strings.Contains(got, "unknown or has expired") {
		t.Fatalf("expected unknown code message, got %q", got)
	}

	creatorPlay := findPlay(t, gdb, 10, fb.Code)
	playThrough(t, h, b, creatorPlay, 10)
	if got := client.lastMessageText(t); got != "Battle finished: 10/10 correct. Waiting for your opponent." {
		t.Fatalf("expected the creator to wait, got %q", got)
	}

	client.reset()
	playThrough(t, h, b, findPlay(t, gdb, 20, fb.Code), 20)
	toOpponent, toCreator := client.sentTo(20), client.sentTo(10)
	if len(toCreator) != 1 || toCreator[0] != "Battle finished: you 10, player 20 10. It's a tie." {
		t.Fatalf("unexpected creator summary: %q", toCreator)
	}
	if last := toOpponent[len(toOpponent)-1]; last != "Battle finished: you 10, player 10 10. It's a tie." {
		t.Fatalf("unexpected opponent summary: %q", last)
	}

	h.HandleHistory(ctx, b, newTestUpdate("/history 10", 20))
	if got := client.lastMessageText(t); got != "Against player 10: 1 battles, 0 wins, 0 losses, 1 ties." {
		t.Fatalf("unexpected head to head: %q", got)
	}
}

func findPlay(t *testing.T, gdb *gorm.DB, userID int64, code string) db.BattlePlay {
	t.Helper()
	var play db.BattlePlay
	if err := gdb.Where("user_id = ? AND friend_code = ?", userID, code).First(&play).Error; err != nil {
		t.Fatalf("expected a battle play for user %d: %v", userID, err)
	}
	return play
}

// playThrough taps the first slot of every question. Words without
// distractors have a single, correct option.
func playThrough(t *testing.T, h *Handlers, b *telegram.Bot, play db.BattlePlay, userID int64) {
	t.Helper()
	for pos := range play.WordIDs {
		data, err := ui.BuildBattleCallback(ui.BattleAnswer{PlayID: play.ID, Position: pos})
		if err != nil {
			t.Fatalf("BuildBattleCallback returned error: %v", err)
		}
		h.HandleBattleCallback(context.Background(), b, newTestCallbackUpdate(data, userID, userID, 100+pos))
	}
}

func TestSoloBattleFlow(t *testing.T) {
	h, gdb := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)
	topic := seedTopicWithSessions(t, h, gdb, 12)

	h.HandleBattle(ctx, b, newTestUpdate("/battle topic", 60))
	if got := client.lastMessageText(t); !strings.Contains(got, "Usage") {
		t.Fatalf("expected usage message, got %q", got)
	}

	client.reset()
	h.HandleBattle(ctx, b, newTestUpdate(fmt.Sprintf("/battle topic %d", topic.ID), 60))
	sent := client.sentTo(60)
	if len(sent) != 2 || !strings.HasPrefix(sent[0], fmt.Sprintf("Battle: topic %d, session", topic.ID)) || !strings.HasPrefix(sent[1], "⚔️ 1/10") {
		t.Fatalf("expected battle intro and first question, got %q", sent)
	}
	var play db.BattlePlay
	if err := gdb.Where("user_id = ?", 60).First(&play).Error; err != nil {
		t.Fatalf("expected a stored play: %v", err)
	}

	data, err := ui.BuildBattleCallback(ui.BattleAnswer{PlayID: play.ID, Position: 0})
	if err != nil {
		t.Fatalf("BuildBattleCallback returned error: %v", err)
	}
	client.reset()
	h.HandleBattleCallback(ctx, b, newTestCallbackUpdate(data, 61, 61, 5))
	if call := client.last(t); call.method != "answerCallbackQuery" || call.fields["text"] != "This battle is not yours" {
		t.Fatalf("expected another player's tap to be refused, got %+v", call)
	}

	playThrough(t, h, b, play, 60)
	if got := client.lastMessageText(t); got != "Battle finished: 10/10 correct." {
		t.Fatalf("unexpected battle summary: %q", got)
	}
	h.HandleBattleCallback(ctx, b, newTestCallbackUpdate(data, 60, 60, 5))
	if call := client.last(t); call.fields["text"] != "Already answered" {
		t.Fatalf("expected a repeated tap to be refused, got %+v", call)
	}

	h.HandleStats(ctx, b, newTestUpdate("/stats", 60))
	if got := client.lastMessageText(t); !strings.Contains(got, "Battles: 1") || !strings.Contains(got, "Total score: 10") {
		t.Fatalf("unexpected stats after a battle: %q", got)
	}
	h.HandleHistory(ctx, b, newTestUpdate("/history", 60))
	if got := client.lastMessageText(t); !strings.HasPrefix(got, "Recent battles:") || !strings.Contains(got, "solo, score 10") {
		t.Fatalf("unexpected history: %q", got)
	}
	h.HandleHistory(ctx, b, newTestUpdate("/history", 61))
	if got := client.lastMessageText(t); got != "No battles yet. Try /battle." {
		t.Fatalf("unexpected empty history: %q", got)
	}
}

func TestPracticeFlow(t *testing.T) {
	h, gdb := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	book := testutil.SeedBook(t, gdb, "Book")
	topic, words := testutil.SeedTopic(t, gdb, book.ID, "food", 1, 3)
	if _, err := h.Parts.BuildParts(ctx, topic.ID, 15); err != nil {
		t.Fatalf("BuildParts returned error: %v", err)
	}
	// Sorted options put "a1" before the answer, so slot 0 is wrong here.
	if err := gdb.Create(&db.DistractorSet{WordID: words[2].ID, Distractor1: "a1", Distractor2: "a2", Distractor3: "a3"}).Error; err != nil {
		t.Fatalf("failed to seed distractors: %v", err)
	}

	h.HandlePractice(ctx, b, newTestUpdate(fmt.Sprintf("/practice %d 2", topic.ID), 50))
	if got := client.lastMessageText(t); !strings.Contains(got, "no learning part 2") {
		t.Fatalf("expected missing part message, got %q", got)
	}

	h.HandlePractice(ctx, b, newTestUpdate(fmt.Sprintf("/practice %d 1", topic.ID), 50))
	if got := client.lastMessageText(t); got != "1/3  food-word-1 → ?" {
		t.Fatalf("unexpected first question: %q", got)
	}

	data, err := ui.BuildAnswerCallback(ui.Answer{TopicID: topic.ID, Part: 1, Index: 0, WordID: words[0].ID, Slot: 0, UserID: 50})
	if err != nil {
		t.Fatalf("BuildAnswerCallback returned error: %v", err)
	}
	client.reset()
	h.HandleAnswerCallback(ctx, b, newTestCallbackUpdate(data, 51, 50, 7))
	if call := client.last(t); call.method != "answerCallbackQuery" || call.fields["text"] != "This question is for another player" {
		t.Fatalf("expected another player's tap to be refused, got %+v", call)
	}
	if level, _ := h.Mastery.MasteryLevel(ctx, 51, words[0].ID); level != 0 {
		t.Fatalf("expected no progress for the other player, got %d", level)
	}

	client.reset()
	h.HandleAnswerCallback(ctx, b, newTestCallbackUpdate(data, 50, 50, 7))
	if got := client.lastMessageText(t); got != "2/3  food-word-2 → ?" {
		t.Fatalf("unexpected next question: %q", got)
	}
	methods := client.methods()
	if len(methods) != 3 || methods[0] != "editMessageText" || methods[1] != "answerCallbackQuery" {
		t.Fatalf("unexpected request sequence: %v", methods)
	}
	level, err := h.Mastery.MasteryLevel(ctx, 50, words[0].ID)
	if err != nil || level != mastery.Step {
		t.Fatalf("expected mastery %d after a correct answer, got %d err=%v", mastery.Step, level, err)
	}

	mismatched, err := ui.BuildAnswerCallback(ui.Answer{TopicID: topic.ID, Part: 1, Index: 1, WordID: words[0].ID, Slot: 0, UserID: 50})
	if err != nil {
		t.Fatalf("BuildAnswerCallback returned error: %v", err)
	}
	h.HandleAnswerCallback(ctx, b, newTestCallbackUpdate(mismatched, 50, 50, 8))
	if call := client.last(t); call.fields["text"] != "Not active" {
		t.Fatalf("expected a word that is not at that index to be refused, got %+v", call)
	}

	data, err = ui.BuildAnswerCallback(ui.Answer{TopicID: topic.ID, Part: 1, Index: 2, WordID: words[2].ID, Slot: 0, UserID: 50})
	if err != nil {
		t.Fatalf("BuildAnswerCallback returned error: %v", err)
	}
	client.reset()
	h.HandleAnswerCallback(ctx, b, newTestCallbackUpdate(data, 50, 50, 9))
	if got := client.lastMessageText(t); !strings.Contains(got, "complete") {
		t.Fatalf("expected completion message, got %q", got)
	}
	if edit := client.requests[0]; edit.method != "editMessageText" || !strings.HasPrefix(edit.fields["text"], "❌ Wrong") {
		t.Fatalf("expected the wrong slot to be judged server-side, got %+v", edit)
	}
	progress, err := h.Mastery.GetProgressForWords(ctx, 50, []int64{words[2].ID})
	if err != nil || len(progress) != 1 || progress[0].IncorrectCount != 1 {
		t.Fatalf("expected one incorrect answer, got %+v err=%v", progress, err)
	}
}

func TestHandleProgress(t *testing.T) {
	h, gdb := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	book := testutil.SeedBook(t, gdb, "Book")
	topic, words := testutil.SeedTopic(t, gdb, book.ID, "home", 1, 3)
	for i := 0; i < 3; i++ {
		if _, err := h.Mastery.RecordAnswer(ctx, 70, words[0].ID, true); err != nil {
			t.Fatalf("RecordAnswer returned error: %v", err)
		}
	}
	if _, err := h.Mastery.RecordAnswer(ctx, 70, words[1].ID, false); err != nil {
		t.Fatalf("RecordAnswer returned error: %v", err)
	}

	h.HandleProgress(ctx, b, newTestUpdate(fmt.Sprintf("/progress %d", topic.ID), 70))
	want := fmt.Sprintf("Topic %d: 1 of 3 words mastered.\nPractice next: home-word-2", topic.ID)
	if got := client.lastMessageText(t); got != want {
		t.Fatalf("unexpected progress:\n got %q\nwant %q", got, want)
	}

	h.HandleProgress(ctx, b, newTestUpdate("/progress 999", 70))
	if got := client.lastMessageText(t); got != "Topic 999 has no words." {
		t.Fatalf("unexpected missing topic reply: %q", got)
	}
	h.HandleProgress(ctx, b, newTestUpdate("/progress", 70))
	if got := client.lastMessageText(t); !strings.Contains(got, "Usage") {
		t.Fatalf("expected usage message, got %q", got)
	}
}

func TestAdminCommands(t *testing.T) {
	h, gdb := newTestHandlers(t)
	ctx := context.Background()
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	book := testutil.SeedBook(t, gdb, "Book")
	testutil.SeedTopic(t, gdb, book.ID, "travel", 1, 12)

	h.HandleRegenerate(ctx, b, newTestUpdate("/regenerate", 99))
	if got := client.lastMessageText(t); !strings.Contains(got, "administrators only") {
		t.Fatalf("expected admin rejection, got %q", got)
	}

	h.HandleRegenerate(ctx, b, newTestUpdate("/regenerate 404", adminID))
	if got := client.lastMessageText(t); !strings.Contains(got, "Book 404 does not exist") {
		t.Fatalf("expected missing book message, got %q", got)
	}

	h.HandleRegenerate(ctx, b, newTestUpdate(fmt.Sprintf("/regenerate %d", book.ID), adminID))
	got := client.lastMessageText(t)
	if !strings.Contains(got, "Regeneration finished.") || !strings.Contains(got, "Scopes regenerated: 2") {
		t.Fatalf("unexpected regeneration report: %q", got)
	}

	h.HandleSweep(ctx, b, newTestUpdate("/sweep", 99))
	if got := client.lastMessageText(t); !strings.Contains(got, "administrators only") {
		t.Fatalf("expected admin rejection, got %q", got)
	}
	h.HandleSweep(ctx, b, newTestUpdate("/sweep", adminID))
	if got := client.lastMessageText(t); got != "Removed 0 expired battle codes and 0 expired battle plays." {
		t.Fatalf("unexpected sweep reply: %q", got)
	}
}
