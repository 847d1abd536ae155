package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

const systemPrompt = `You extract actionable tasks from conversational messages.
Respond with a JSON object: {"tasks": [{"title": "...", "description": "...",
"priority": "low|medium|high", "due_date": "YYYY-MM-DD or null",
"assigned_to": "name or null", "labels": ["..."]}]}.
Return {"tasks": []} when the message contains no actionable task.
Titles are short imperative phrases. Never invent tasks that are not asked for.`

// LLMStrategy extracts tasks with a chat completion model. Responses are
// constrained to JSON; anything unparseable is an error so the delivery is
// retried rather than silently dropped.
type LLMStrategy struct {
	client openai.Client
	model  shared.ChatModel
}

// Compile-time check that LLMStrategy implements Strategy.
var _ Strategy = (*LLMStrategy)(nil)

func NewLLMStrategy(apiKey, chatModel string) *LLMStrategy {
	return &LLMStrategy{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  shared.ChatModel(chatModel),
	}
}

// llmTask mirrors the JSON shape the prompt asks for.
type llmTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"due_date"`
	AssignedTo  string   `json:"assigned_to"`
	Labels      []string `json:"labels"`
}

func (s *LLMStrategy) Extract(ctx context.Context, text string, mctx Context) ([]Draft, error) {
	user := text
	if mctx.Author != "" {
		user = fmt.Sprintf("From %s: %s", mctx.Author, text)
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty response")
	}

	return parseLLMTasks(resp.Choices[0].Message.Content)
}

func parseLLMTasks(content string) ([]Draft, error) {
	var out struct {
		Tasks []llmTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	var drafts []Draft
	for _, t := range out.Tasks {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		d := Draft{
			Title:       title,
			Description: strings.TrimSpace(t.Description),
			Assignee:    strings.TrimSpace(t.AssignedTo),
			Priority:    parsePriority(t.Priority),
			Labels:      t.Labels,
		}
		if t.DueDate != "" && t.DueDate != "null" {
			if due, err := time.ParseInLocation("2006-01-02", t.DueDate, time.UTC); err == nil {
				d.DueDate = &due
			}
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func parsePriority(s string) model.Priority {
	p := model.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return model.PriorityMedium
	}
	return p
}
