package testutil

import (
	"fmt"
	"testing"

	"github.com/smith3v/vocab-battle/pkg/db"
	"gorm.io/gorm"
)

func SeedBook(t *testing.T, gdb *gorm.DB, title string) db.Book {
	t.Helper()
	book := db.Book{Title: title}
	if err := gdb.Create(&book).Error; err != nil {
		t.Fatalf("failed to seed book: %v", err)
	}
	return book
}

// SeedTopic creates a topic under bookID with n words named
// "<title>-word-<i>" / "<title>-tr-<i>", ordinals 1..n.
func SeedTopic(t *testing.T, gdb *gorm.DB, bookID int64, title string, position, n int) (db.Topic, []db.Word) {
	t.Helper()
	topic := db.Topic{BookID: bookID, Title: title, Position: position}
	if err := gdb.Create(&topic).Error; err != nil {
		t.Fatalf("failed to seed topic: %v", err)
	}
	words := make([]db.Word, 0, n)
	for i := 1; i <= n; i++ {
		words = append(words, db.Word{
			TopicID:     topic.ID,
			Ordinal:     i,
			Difficulty:  1,
			Text:        fmt.Sprintf("%s-word-%d", title, i),
			Translation: fmt.Sprintf("%s-tr-%d", title, i),
		})
	}
	if n > 0 {
		if err := gdb.Create(&words).Error; err != nil {
			t.Fatalf("failed to seed words: %v", err)
		}
	}
	return topic, words
}

func WordIDs(words []db.Word) []int64 {
	ids := make([]int64, 0, len(words))
	for _, w := range words {
		ids = append(ids, w.ID)
	}
	return ids
}
