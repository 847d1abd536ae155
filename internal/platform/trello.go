package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

const trelloBaseURL = "https://api.trello.com/1"

// TrelloSink creates cards on a Trello list.
type TrelloSink struct {
	key    string
	token  string
	listID string

	baseURL string
	client  *http.Client
}

// Compile-time check that TrelloSink implements Sink.
var _ Sink = (*TrelloSink)(nil)

func NewTrelloSink(key, token, listID string) *TrelloSink {
	return &TrelloSink{
		key:     key,
		token:   token,
		listID:  listID,
		baseURL: trelloBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (*TrelloSink) Name() model.Platform {
	return model.PlatformTrello
}

func (s *TrelloSink) Create(ctx context.Context, task *model.ExtractedTask) (string, error) {
	form := url.Values{
		"key":    {s.key},
		"token":  {s.token},
		"idList": {s.listID},
		"name":   {task.Title},
	}
	if task.Description != "" {
		form.Set("desc", task.Description)
	}
	if task.DueDate != nil {
		form.Set("due", task.DueDate.Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/cards", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build trello request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create trello card: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(model.PlatformTrello, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var card struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &card); err != nil {
		return "", fmt.Errorf("decode trello response: %w", err)
	}
	if card.ID == "" {
		return "", fmt.Errorf("trello response missing card id")
	}
	return fmt.Sprintf("%s_%s", model.PlatformTrello, card.ID), nil
}
