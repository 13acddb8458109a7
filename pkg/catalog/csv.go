package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"gorm.io/gorm"
)

// Row is one parsed line of a catalog CSV: book;topic;word;translation[;difficulty].
type Row struct {
	Book        string
	Topic       string
	Text        string
	Translation string
	Difficulty  int
}

type ImportReport struct {
	Books    int
	Topics   int
	Inserted int
	Updated  int
	Skipped  int
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const (
	maxDelimiterSampleRecords = 20
	minCatalogFields          = 4
)

func ParseCatalogCSV(data []byte) ([]Row, int, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	delimiter := detectCSVDelimiter(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	var rows []Row
	skipped := 0
	checkedHeader := false

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, err
		}
		if isEmptyCSVRecord(record) {
			skipped++
			continue
		}
		if !checkedHeader {
			checkedHeader = true
			if isHeaderRecord(record) {
				continue
			}
		}
		if len(record) < minCatalogFields {
			skipped++
			continue
		}
		row := Row{
			Book:        strings.TrimSpace(record[0]),
			Topic:       strings.TrimSpace(record[1]),
			Text:        strings.TrimSpace(record[2]),
			Translation: strings.TrimSpace(record[3]),
			Difficulty:  1,
		}
		if row.Book == "" || row.Topic == "" || row.Text == "" || row.Translation == "" {
			skipped++
			continue
		}
		if len(record) > minCatalogFields {
			if d, err := strconv.Atoi(strings.TrimSpace(record[4])); err == nil && d >= 1 && d <= 5 {
				row.Difficulty = d
			}
		}
		rows = append(rows, row)
	}

	return rows, skipped, nil
}

func detectCSVDelimiter(data []byte) rune {
	candidates := []rune{';', ',', '\t'}
	bestDelimiter := candidates[0]
	bestScore := -1

	for _, delimiter := range candidates {
		score, err := scoreDelimiter(data, delimiter, maxDelimiterSampleRecords)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestDelimiter = delimiter
		}
	}

	if bestScore <= 0 {
		return ';'
	}
	return bestDelimiter
}

// scoreDelimiter counts sampled records that split into enough fields.
func scoreDelimiter(data []byte, delimiter rune, maxRecords int) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	score := 0
	recordsSeen := 0
	for recordsSeen < maxRecords {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if isEmptyCSVRecord(record) {
			continue
		}
		recordsSeen++
		if len(record) >= minCatalogFields {
			score++
		}
	}
	return score, nil
}

func isEmptyCSVRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func isHeaderRecord(record []string) bool {
	if len(record) < minCatalogFields {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "book") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "topic")
}

// ImportCSV seeds books, topics and words from a catalog CSV. Books and topics
// are matched by title; a word already present in its topic gets its
// translation and difficulty updated, new words are appended after the
// topic's last ordinal.
func ImportCSV(ctx context.Context, gdb *gorm.DB, data []byte) (ImportReport, error) {
	rows, skipped, err := ParseCatalogCSV(data)
	if err != nil {
		return ImportReport{}, err
	}
	report := ImportReport{Skipped: skipped}
	if len(rows) == 0 {
		return report, nil
	}

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := make(map[string]db.Book)
		topics := make(map[string]db.Topic)
		nextOrdinal := make(map[int64]int)

		for _, row := range rows {
			book, ok := books[row.Book]
			if !ok {
				var err error
				var created bool
				book, created, err = findOrCreateBook(tx, row.Book)
				if err != nil {
					return err
				}
				if created {
					report.Books++
				}
				books[row.Book] = book
			}

			topicKey := strconv.FormatInt(book.ID, 10) + "/" + row.Topic
			topic, ok := topics[topicKey]
			if !ok {
				var err error
				var created bool
				topic, created, err = findOrCreateTopic(tx, book.ID, row.Topic)
				if err != nil {
					return err
				}
				if created {
					report.Topics++
				}
				topics[topicKey] = topic
				var maxOrdinal int
				if err := tx.Model(&db.Word{}).Where("topic_id = ?", topic.ID).
					Select("COALESCE(MAX(ordinal), 0)").Scan(&maxOrdinal).Error; err != nil {
					return err
				}
				nextOrdinal[topic.ID] = maxOrdinal + 1
			}

			result := tx.Model(&db.Word{}).
				Where("topic_id = ? AND text = ?", topic.ID, row.Text).
				Updates(map[string]any{"translation": row.Translation, "difficulty": row.Difficulty})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				report.Updated++
				continue
			}

			word := db.Word{
				TopicID:     topic.ID,
				Ordinal:     nextOrdinal[topic.ID],
				Difficulty:  row.Difficulty,
				Text:        row.Text,
				Translation: row.Translation,
			}
			if err := tx.Create(&word).Error; err != nil {
				return err
			}
			nextOrdinal[topic.ID]++
			report.Inserted++
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to import catalog", "error", err)
		return ImportReport{}, err
	}

	logger.Info("catalog imported", "books", report.Books, "topics", report.Topics,
		"inserted", report.Inserted, "updated", report.Updated, "skipped", report.Skipped)
	return report, nil
}

func findOrCreateBook(tx *gorm.DB, title string) (db.Book, bool, error) {
	var book db.Book
	err := tx.Where("title = ?", title).Order("id ASC").First(&book).Error
	if err == nil {
		return book, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Book{}, false, err
	}

	var position int
	if err := tx.Model(&db.Book{}).Select("COUNT(*)").Scan(&position).Error; err != nil {
		return db.Book{}, false, err
	}
	book = db.Book{Title: title, Position: position}
	if err := tx.Create(&book).Error; err != nil {
		return db.Book{}, false, err
	}
	return book, true, nil
}

func findOrCreateTopic(tx *gorm.DB, bookID int64, title string) (db.Topic, bool, error) {
	var topic db.Topic
	err := tx.Where("book_id = ? AND title = ?", bookID, title).Order("id ASC").First(&topic).Error
	if err == nil {
		return topic, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Topic{}, false, err
	}

	var position int
	if err := tx.Model(&db.Topic{}).Where("book_id = ?", bookID).
		Select("COUNT(*)").Scan(&position).Error; err != nil {
		return db.Topic{}, false, err
	}
	topic = db.Topic{BookID: bookID, Title: title, Position: position}
	if err := tx.Create(&topic).Error; err != nil {
		return db.Topic{}, false, err
	}
	return topic, true, nil
}
