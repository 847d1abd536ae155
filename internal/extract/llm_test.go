package extract

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

func TestParseLLMTasks(t *testing.T) {
	content := `{
		"tasks": [
			{
				"title": "Fix the login bug",
				"description": "Reported during standup",
				"priority": "high",
				"due_date": "2026-08-28",
				"assigned_to": "dana",
				"labels": ["bug", "auth"]
			},
			{
				"title": "Update the runbook",
				"priority": "medium",
				"due_date": null,
				"assigned_to": null
			}
		]
	}`

	drafts, err := parseLLMTasks(content)
	if err != nil {
		t.Fatalf("parseLLMTasks error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}

	d := drafts[0]
	if d.Title != "Fix the login bug" || d.Assignee != "dana" || d.Priority != model.PriorityHigh {
		t.Errorf("first draft = %+v", d)
	}
	wantDue := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if d.DueDate == nil || !d.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", d.DueDate, wantDue)
	}

	if drafts[1].DueDate != nil {
		t.Errorf("second draft DueDate = %v, want nil", drafts[1].DueDate)
	}
}

func TestParseLLMTasksEmpty(t *testing.T) {
	drafts, err := parseLLMTasks(`{"tasks": []}`)
	if err != nil {
		t.Fatalf("parseLLMTasks error: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("got %d drafts, want 0", len(drafts))
	}
}

func TestParseLLMTasksSkipsUntitled(t *testing.T) {
	drafts, err := parseLLMTasks(`{"tasks": [{"title": "  "}, {"title": "Ship it"}]}`)
	if err != nil {
		t.Fatalf("parseLLMTasks error: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Title != "Ship it" {
		t.Errorf("drafts = %+v, want only Ship it", drafts)
	}
}

func TestParseLLMTasksMalformed(t *testing.T) {
	if _, err := parseLLMTasks("here are the tasks you asked for"); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

func TestParsePriorityFallsBackToMedium(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want model.Priority
	}{
		{"high", model.PriorityHigh},
		{"HIGH", model.PriorityHigh},
		{" low ", model.PriorityLow},
		{"", model.PriorityMedium},
		{"extreme", model.PriorityMedium},
	} {
		if got := parsePriority(tc.in); got != tc.want {
			t.Errorf("parsePriority(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
