// Package ui encodes inline keyboard callback data for quiz questions.
package ui

import (
	"errors"
	"strconv"
	"strings"
)

const (
	AnswerCallbackPrefix = "a:"
	BattleCallbackPrefix = "b:"
	MaxCallbackDataLen   = 64
)

// Answer is a tapped practice option. Index is the question's position within
// the learning part, so the handler can send the next one. UserID is the
// learner the question was sent to.
type Answer struct {
	TopicID int64
	Part    int
	Index   int
	WordID  int64
	Slot    int
	UserID  int64
}

// BattleAnswer is a tapped battle option. The play knows its words and owner.
type BattleAnswer struct {
	PlayID   uint
	Position int
	Slot     int
}

var (
	errInvalidPrefix       = errors.New("invalid callback prefix")
	errInvalidAction       = errors.New("invalid callback action")
	errInvalidValue        = errors.New("invalid callback value")
	errCallbackDataTooLong = errors.New("callback data too long")
)

// BuildAnswerCallback encodes a as "a:<topic>:<part>:<index>:<word>:<slot>:<user>".
func BuildAnswerCallback(a Answer) (string, error) {
	if a.TopicID <= 0 || a.Part < 1 || a.Index < 0 || a.WordID <= 0 || a.Slot < 0 || a.UserID <= 0 {
		return "", errInvalidValue
	}
	return encode(AnswerCallbackPrefix, a.TopicID, int64(a.Part), int64(a.Index), a.WordID, int64(a.Slot), a.UserID)
}

func ParseAnswerCallback(data string) (Answer, error) {
	v, err := decode(data, AnswerCallbackPrefix, 6)
	if err != nil {
		return Answer{}, err
	}
	if v[0] == 0 || v[1] == 0 || v[3] == 0 || v[5] == 0 {
		return Answer{}, errInvalidValue
	}
	return Answer{TopicID: v[0], Part: int(v[1]), Index: int(v[2]), WordID: v[3], Slot: int(v[4]), UserID: v[5]}, nil
}

// BuildBattleCallback encodes a as "b:<play>:<position>:<slot>".
func BuildBattleCallback(a BattleAnswer) (string, error) {
	if a.PlayID == 0 || a.Position < 0 || a.Slot < 0 {
		return "", errInvalidValue
	}
	return encode(BattleCallbackPrefix, int64(a.PlayID), int64(a.Position), int64(a.Slot))
}

func ParseBattleCallback(data string) (BattleAnswer, error) {
	v, err := decode(data, BattleCallbackPrefix, 3)
	if err != nil {
		return BattleAnswer{}, err
	}
	if v[0] == 0 {
		return BattleAnswer{}, errInvalidValue
	}
	return BattleAnswer{PlayID: uint(v[0]), Position: int(v[1]), Slot: int(v[2])}, nil
}

func encode(prefix string, values ...int64) (string, error) {
	fields := make([]string, 0, len(values))
	for _, v := range values {
		fields = append(fields, strconv.FormatInt(v, 10))
	}
	return validateCallbackData(prefix + strings.Join(fields, ":"))
}

// decode splits data into exactly n unsigned integers after prefix.
func decode(data, prefix string, n int) ([]int64, error) {
	if data == "" {
		return nil, errInvalidAction
	}
	if len(data) > MaxCallbackDataLen {
		return nil, errCallbackDataTooLong
	}
	if !strings.HasPrefix(data, prefix) {
		return nil, errInvalidPrefix
	}

	parts := strings.Split(strings.TrimPrefix(data, prefix), ":")
	if len(parts) != n {
		return nil, errInvalidAction
	}
	values := make([]int64, 0, n)
	for _, p := range parts {
		if !isASCIIUnsignedInt(p) {
			return nil, errInvalidValue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, errInvalidValue
		}
		values = append(values, v)
	}
	return values, nil
}

func validateCallbackData(data string) (string, error) {
	if data == "" {
		return "", errInvalidAction
	}
	if len(data) > MaxCallbackDataLen {
		return "", errCallbackDataTooLong
	}
	return data, nil
}

func isASCIIUnsignedInt(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
