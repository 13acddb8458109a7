// pkg/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

// Catalog records. These belong to the content authoring side; the core only
// reads them through catalog.Store.

type Book struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	Position    int `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

type Topic struct {
	ID        int64  `gorm:"primaryKey"`
	BookID    int64  `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	Position  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
}

type Word struct {
	ID          int64  `gorm:"primaryKey"`
	TopicID     int64  `gorm:"not null;index:idx_word_topic_ordinal"`
	Ordinal     int    `gorm:"not null;default:0;index:idx_word_topic_ordinal"`
	Difficulty  int    `gorm:"not null;default:1"`
	Text        string `gorm:"not null"`
	Translation string `gorm:"not null"`
	Photo       string
	Note        string
	CreatedAt   time.Time
}

// Precomputed content.

type LearningPart struct {
	ID         uint                       `gorm:"primaryKey"`
	TopicID    int64                      `gorm:"not null;uniqueIndex:idx_learning_part_topic_number"`
	PartNumber int                        `gorm:"not null;uniqueIndex:idx_learning_part_topic_number"`
	PartSize   int                        `gorm:"not null"`
	WordIDs    datatypes.JSONSlice[int64] `gorm:"not null"`
	CreatedAt  time.Time
}

// DistractorSet holds exactly three wrong answers for a word, copied as text.
type DistractorSet struct {
	WordID      int64  `gorm:"primaryKey;autoIncrement:false"`
	Distractor1 string `gorm:"not null"`
	Distractor2 string `gorm:"not null"`
	Distractor3 string `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d DistractorSet) Texts() []string {
	return []string{d.Distractor1, d.Distractor2, d.Distractor3}
}

type TopicBattleSession struct {
	ID            uint                       `gorm:"primaryKey"`
	TopicID       int64                      `gorm:"not null;uniqueIndex:idx_topic_battle_session_number"`
	SessionNumber int                        `gorm:"not null;uniqueIndex:idx_topic_battle_session_number"`
	WordIDs       datatypes.JSONSlice[int64] `gorm:"not null"`
	CreatedAt     time.Time
}

type BookBattleSession struct {
	ID            uint                       `gorm:"primaryKey"`
	BookID        int64                      `gorm:"not null;uniqueIndex:idx_book_battle_session_number"`
	SessionNumber int                        `gorm:"not null;uniqueIndex:idx_book_battle_session_number"`
	WordIDs       datatypes.JSONSlice[int64] `gorm:"not null"`
	CreatedAt     time.Time
}

// SessionScopeState tracks generation of sessions per scope.
type SessionScopeState struct {
	ID          uint   `gorm:"primaryKey"`
	ScopeKind   string `gorm:"size:16;not null;uniqueIndex:idx_session_scope_state"`
	ScopeID     int64  `gorm:"not null;uniqueIndex:idx_session_scope_state"`
	Generation  int    `gorm:"not null;default:0"`
	Stale       bool   `gorm:"not null;default:false"`
	GeneratedAt time.Time
	UpdatedAt   time.Time
}

// Learner state.

type UserWordProgress struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         int64     `gorm:"not null;uniqueIndex:idx_user_word_progress"`
	WordID         int64     `gorm:"not null;uniqueIndex:idx_user_word_progress;index"`
	CorrectCount   int       `gorm:"not null;default:0"`
	IncorrectCount int       `gorm:"not null;default:0"`
	CurrentStreak  int       `gorm:"not null;default:0"`
	MasteryLevel   int       `gorm:"not null;default:0"`
	LastSeenAt     time.Time `gorm:"not null"`
	CreatedAt      time.Time
}

func (UserWordProgress) TableName() string {
	return "user_word_progress"
}

type BattleRecord struct {
	ID             uint   `gorm:"primaryKey"`
	Code           string `gorm:"size:36;not null;uniqueIndex"`
	SessionKind    string `gorm:"size:16;not null"`
	SessionScopeID int64  `gorm:"not null;default:0"`
	SessionNumber  int    `gorm:"not null;default:0"`
	Player1ID      int64  `gorm:"not null;index"`
	Player2ID      *int64 `gorm:"index"`
	Player1Score   int    `gorm:"not null;default:0"`
	Player2Score   int    `gorm:"not null;default:0"`
	WinnerID       *int64
	CompletedAt    time.Time `gorm:"not null;index"`
}

type UserStatistics struct {
	ID         uint  `gorm:"primaryKey"`
	UserID     int64 `gorm:"not null;uniqueIndex"`
	Wins       int   `gorm:"not null;default:0"`
	Losses     int   `gorm:"not null;default:0"`
	Ties       int   `gorm:"not null;default:0"`
	Battles    int   `gorm:"not null;default:0"`
	TotalScore int64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UserStatistics) TableName() string {
	return "user_statistics"
}

type FriendBattle struct {
	ID             uint   `gorm:"primaryKey"`
	Code           string `gorm:"size:16;not null;uniqueIndex"`
	CreatorID      int64  `gorm:"not null;index"`
	SessionKind    string `gorm:"size:16;not null"`
	SessionScopeID int64  `gorm:"not null"`
	SessionNumber  int    `gorm:"not null"`
	OpponentID     *int64
	ClaimedAt      *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// BattlePlay is one player's run through a battle session. Plays sharing a
// FriendCode are settled together once both have finished.
type BattlePlay struct {
	ID             uint                       `gorm:"primaryKey"`
	UserID         int64                      `gorm:"not null;index"`
	ChatID         int64                      `gorm:"not null"`
	FriendCode     string                     `gorm:"size:16;not null;default:'';index"`
	SessionKind    string                     `gorm:"size:16;not null"`
	SessionScopeID int64                      `gorm:"not null"`
	SessionNumber  int                        `gorm:"not null"`
	WordIDs        datatypes.JSONSlice[int64] `gorm:"not null"`
	Position       int                        `gorm:"not null;default:0"`
	Score          int                        `gorm:"not null;default:0"`
	FinishedAt     *time.Time
	RecordedAt     *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// AllModels lists every table owned by this repository, in migration order.
func AllModels() []any {
	return []any{
		&Book{},
		&Topic{},
		&Word{},
		&LearningPart{},
		&DistractorSet{},
		&TopicBattleSession{},
		&BookBattleSession{},
		&SessionScopeState{},
		&UserWordProgress{},
		&BattleRecord{},
		&UserStatistics{},
		&FriendBattle{},
		&BattlePlay{},
	}
}
