package handlers

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	telegram "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// apiCall is one Bot API request with its multipart form fields decoded.
type apiCall struct {
	method string
	fields map[string]string
}

// mockClient answers every Bot API call with response and records it.
type mockClient struct {
	mu       sync.Mutex
	requests []apiCall
	response string
}

func newMockClient() *mockClient {
	return &mockClient{
		response: `{"ok":true,"result":{}}`,
	}
}

func (m *mockClient) Do(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if err := req.Body.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request body: %w", err)
	}
	fields, err := decodeForm(req.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, apiCall{method: path.Base(req.URL.Path), fields: fields})
	m.mu.Unlock()

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(m.response)),
		Header:     make(http.Header),
	}, nil
}

func decodeForm(contentType string, body []byte) (map[string]string, error) {
	fields := map[string]string{}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return fields, nil
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return fields, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart part: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart field: %w", err)
		}
		fields[part.FormName()] = string(data)
	}
}

func (m *mockClient) last(t *testing.T) apiCall {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatalf("expected at least one recorded request")
	}
	return m.requests[len(m.requests)-1]
}

func (m *mockClient) lastMessageText(t *testing.T) string {
	t.Helper()
	text, ok := m.last(t).fields["text"]
	if !ok {
		t.Fatalf("text field not found in request")
	}
	return text
}

func (m *mockClient) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, req.method)
	}
	return out
}

// sentTo returns the texts of sendMessage calls addressed to chatID.
func (m *mockClient) sentTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := fmt.Sprint(chatID)
	var out []string
	for _, req := range m.requests {
		if req.method == "sendMessage" && req.fields["chat_id"] == want {
			out = append(out, req.fields["text"])
		}
	}
	return out
}

func (m *mockClient) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func newTestTelegramBot(t *testing.T, client *mockClient) *telegram.Bot {
	t.Helper()
	b, err := telegram.New("test-token",
		telegram.WithSkipGetMe(),
		telegram.WithHTTPClient(time.Second, client),
	)
	if err != nil {
		t.Fatalf("failed to create test bot: %v", err)
	}
	return b
}

func newTestUpdate(text string, userID int64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: userID},
			Chat: models.Chat{ID: userID, Type: models.ChatTypePrivate},
			Text: text,
		},
	}
}

func newTestCallbackUpdate(data string, userID, chatID int64, messageID int) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "callback-1",
			From: models.User{ID: userID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type: models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{
					ID: messageID,
					Chat: models.Chat{
						ID:   chatID,
						Type: models.ChatTypePrivate,
					},
				},
			},
		},
	}
}
