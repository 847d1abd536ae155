package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/taskflow/internal/events"
	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printMessageTable(msg *model.Message) {
	fmt.Printf("ID:           %s\n", ui.RenderAccent(msg.ID))
	fmt.Printf("Source:       %s\n", msg.Source)
	fmt.Printf("Author:       %s\n", msg.Author)
	fmt.Printf("Conversation: %s\n", msg.ConversationID)
	fmt.Printf("Received At:  %s\n", msg.ReceivedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Text:         %s\n", msg.Text)
	if len(msg.Metadata) > 0 {
		fmt.Println("Metadata:")
		for k, v := range msg.Metadata {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}
}

func printMessageListTable(msgs []*model.Message) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tAUTHOR\tRECEIVED\tTEXT")
	for _, m := range msgs {
		text := m.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID,
			m.Source,
			m.Author,
			m.ReceivedAt.Format("2006-01-02 15:04"),
			text,
		)
	}
	w.Flush()
	fmt.Printf("\n%d messages\n", len(msgs))
}

func printTaskListTable(tasks []*model.ExtractedTask) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tDUE\tASSIGNEE\tLABELS\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		title := t.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			renderPriority(t.Priority),
			due,
			t.Assignee,
			strings.Join(t.Labels, ","),
			title,
		)
	}
	w.Flush()
	fmt.Printf("\n%d tasks\n", len(tasks))
}

func renderPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return ui.RenderWarn(p.String())
	case model.PriorityLow:
		return ui.RenderMuted(p.String())
	}
	return p.String()
}

func printPlatformTaskListTable(tasks []*model.PlatformTask) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tSTATUS\tREF\tCREATED\tERROR")
	for _, t := range tasks {
		status := t.Status.String()
		if t.Status == model.StatusFailed {
			status = ui.RenderError(status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.Platform,
			status,
			t.ExternalRef,
			t.CreatedAt.Format("2006-01-02 15:04"),
			t.ErrorReason,
		)
	}
	w.Flush()
	fmt.Printf("\n%d platform tasks\n", len(tasks))
}

func printDeadLetterTable(letters []events.DeadLetter) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT ID\tTOPIC\tTYPE\tATTEMPTS\tDEAD-LETTERED\tLAST ERROR")
	for _, dl := range letters {
		lastErr := dl.LastError
		if len(lastErr) > 60 {
			lastErr = lastErr[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			dl.Envelope.EventID,
			dl.Topic,
			dl.Envelope.EventType,
			dl.Attempts,
			dl.DeadLetteredAt.Format("2006-01-02 15:04"),
			ui.RenderError(lastErr),
		)
	}
	w.Flush()
	fmt.Printf("\n%d dead letters\n", len(letters))
}
