package extract

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// RulesStrategy extracts tasks with deterministic phrase rules. It is the
// default strategy: no network, no credentials, stable output for the same
// input.
type RulesStrategy struct {
	// now anchors relative due dates ("by Friday"); swappable for tests.
	now func() time.Time
}

// Compile-time check that RulesStrategy implements Strategy.
var _ Strategy = (*RulesStrategy)(nil)

func NewRulesStrategy() *RulesStrategy {
	return &RulesStrategy{now: time.Now}
}

// triggerPatterns capture the action phrase that follows a commitment or
// request. The first match in a sentence wins.
var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:we|i|you|they)\s+need to\s+(.+)`),
	regexp.MustCompile(`(?i)\bneed to\s+(.+)`),
	regexp.MustCompile(`(?i)\b(?:can|could|would)\s+you\s+(?:please\s+)?(.+)`),
	regexp.MustCompile(`(?i)\bplease\s+(.+)`),
	regexp.MustCompile(`(?i)\b(?:we|i|you)\s+(?:must|should|have to)\s+(.+)`),
	regexp.MustCompile(`(?i)\bdon'?t forget to\s+(.+)`),
	regexp.MustCompile(`(?i)\bremember to\s+(.+)`),
	regexp.MustCompile(`(?i)\bi'?ll\s+(.+)`),
	regexp.MustCompile(`(?i)^\s*todo:?\s+(.+)`),
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?\n]+`)
	duePhrase     = regexp.MustCompile(`(?i)\s*\bby\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|end of day|eod|end of week|next week)\b`)
	mention       = regexp.MustCompile(`@(\w+)`)
	hashtag       = regexp.MustCompile(`#(\w+)`)
	highPriority  = regexp.MustCompile(`(?i)\b(urgent|asap|critical|immediately|right away)\b`)
	lowPriority   = regexp.MustCompile(`(?i)\b(no rush|whenever|low priority|when you get a chance)\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

func (r *RulesStrategy) Extract(_ context.Context, text string, _ Context) ([]Draft, error) {
	var drafts []Draft
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if d, ok := r.draftFromSentence(sentence); ok {
			drafts = append(drafts, d)
		}
	}
	return drafts, nil
}

func (r *RulesStrategy) draftFromSentence(sentence string) (Draft, bool) {
	var action string
	for _, p := range triggerPatterns {
		if m := p.FindStringSubmatch(sentence); m != nil {
			action = m[1]
			break
		}
	}
	if action == "" {
		return Draft{}, false
	}

	d := Draft{
		Description: sentence,
		Priority:    model.PriorityMedium,
	}

	if m := duePhrase.FindStringSubmatch(action); m != nil {
		if due, ok := r.resolveDue(strings.ToLower(m[1])); ok {
			d.DueDate = &due
		}
		action = duePhrase.ReplaceAllString(action, "")
	}

	if m := mention.FindStringSubmatch(sentence); m != nil {
		d.Assignee = m[1]
		action = mention.ReplaceAllString(action, "")
	}

	for _, m := range hashtag.FindAllStringSubmatch(sentence, -1) {
		d.Labels = append(d.Labels, strings.ToLower(m[1]))
	}
	action = hashtag.ReplaceAllString(action, "")

	switch {
	case highPriority.MatchString(sentence):
		d.Priority = model.PriorityHigh
	case lowPriority.MatchString(sentence):
		d.Priority = model.PriorityLow
	}

	d.Title = titleFromAction(action)
	if d.Title == "" {
		return Draft{}, false
	}
	return d, true
}

// resolveDue maps a due phrase to an absolute date at midnight UTC.
func (r *RulesStrategy) resolveDue(phrase string) (time.Time, bool) {
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if wd, ok := weekdays[phrase]; ok {
		days := (int(wd) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), true
	}

	switch phrase {
	case "today", "end of day", "eod":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "end of week":
		days := (int(time.Friday) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, days), true
	case "next week":
		days := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

// titleFromAction normalizes the captured action phrase into a task title.
func titleFromAction(action string) string {
	title := strings.Join(strings.Fields(action), " ")
	title = strings.Trim(title, " ,;:-")
	if title == "" {
		return ""
	}
	runes := []rune(title)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
