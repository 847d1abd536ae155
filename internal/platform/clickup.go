package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

const clickUpBaseURL = "https://api.clickup.com/api/v2"

// clickUpPriorities maps task priorities onto ClickUp's 1 (urgent) to 4
// (low) scale.
var clickUpPriorities = map[model.Priority]int{
	model.PriorityHigh:   2,
	model.PriorityMedium: 3,
	model.PriorityLow:    4,
}

// ClickUpSink creates tasks on a ClickUp list.
type ClickUpSink struct {
	token  string
	listID string

	baseURL string
	client  *http.Client
}

// Compile-time check that ClickUpSink implements Sink.
var _ Sink = (*ClickUpSink)(nil)

func NewClickUpSink(token, listID string) *ClickUpSink {
	return &ClickUpSink{
		token:   token,
		listID:  listID,
		baseURL: clickUpBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (*ClickUpSink) Name() model.Platform {
	return model.PlatformClickUp
}

func (s *ClickUpSink) Create(ctx context.Context, task *model.ExtractedTask) (string, error) {
	payload := map[string]any{
		"name":        task.Title,
		"description": task.Description,
		"priority":    clickUpPriorities[task.Priority],
	}
	if task.DueDate != nil {
		payload["due_date"] = task.DueDate.UnixMilli()
	}
	if len(task.Labels) > 0 {
		payload["tags"] = task.Labels
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode clickup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/list/%s/task", s.baseURL, s.listID), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build clickup request: %w", err)
	}
	req.Header.Set("Authorization", s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create clickup task: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(model.PlatformClickUp, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("decode clickup response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("clickup response missing task id")
	}
	return fmt.Sprintf("%s_%s", model.PlatformClickUp, created.ID), nil
}
