package ai

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/workloadinsights/backend/internal/models"
)

const DefaultSystemPrompt = `You are the workload assistant for a school's facilities and IT staff.
Answer questions about logged activities: who is busy, what is open, recurring problems and where they happen.
Base every answer on the activity data provided. If the data does not cover the question, say so.
Keep answers short and use plain lists when comparing staff or locations.`

const (
	maxHistoryTurns = 10
	noteRunes       = 160
)

// Summary holds counts over the whole lookback window, not just the sample.
type Summary struct {
	From       time.Time
	To         time.Time
	Total      int
	Sampled    int
	ByStatus   map[string]int
	ByPriority map[string]int
}

// Summarize counts activities by status and priority.
func Summarize(all []models.Activity, sampled int, from, to time.Time) Summary {
	s := Summary{
		From:       from,
		To:         to,
		Total:      len(all),
		Sampled:    sampled,
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
	}
	for _, a := range all {
		s.ByStatus[a.Status]++
		s.ByPriority[a.Priority]++
	}
	return s
}

// ActivityLine renders one activity on a single line.
func ActivityLine(a models.Activity) string {
	parts := []string{
		a.Timestamp.UTC().Format("2006-01-02"),
		a.Status,
		a.Priority,
	}
	category := "uncategorised"
	if a.Category != nil && a.Category.Name != "" {
		category = a.Category.Name
	}
	if a.Subcategory != "" {
		category += "/" + a.Subcategory
	}
	parts = append(parts, category)
	if a.Location != "" {
		parts = append(parts, "at "+a.Location)
	}
	if a.User != nil {
		parts = append(parts, "reported by "+a.User.FullName)
	}
	if names := assigneeNames(a); len(names) > 0 {
		parts = append(parts, "assigned to "+strings.Join(names, ", "))
	} else {
		parts = append(parts, "unassigned")
	}
	line := "- " + strings.Join(parts, " | ")
	if notes := truncateRunes(oneLine(a.Notes), noteRunes); notes != "" {
		line += " | " + notes
	}
	return line
}

func assigneeNames(a models.Activity) []string {
	var names []string
	for _, asg := range a.Assignments {
		if asg.User != nil {
			names = append(names, asg.User.FullName)
		}
	}
	if len(names) == 0 && a.AssignedTo != nil {
		names = append(names, a.AssignedTo.FullName)
	}
	return names
}

// BuildRequest assembles the system prompt, data block, trimmed history and
// the new user message.
func BuildRequest(settings Settings, sample []models.Activity, summary Summary, history []Message, message string) Request {
	system := strings.TrimSpace(settings.SystemPrompt)
	if system == "" {
		system = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)
	fmt.Fprintf(&b, "\n\nToday is %s.\n", summary.To.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "Activities from %s to %s: %d total, %d shown below.\n",
		summary.From.UTC().Format("2006-01-02"), summary.To.UTC().Format("2006-01-02"),
		summary.Total, summary.Sampled)
	fmt.Fprintf(&b, "By status: %s\n", countLine(summary.ByStatus, models.ActivityStatuses))
	fmt.Fprintf(&b, "By priority: %s\n", countLine(summary.ByPriority, models.ActivityPriorities))
	b.WriteString("\nActivities (newest first):\n")
	if len(sample) == 0 {
		b.WriteString("(none)\n")
	}
	for _, a := range sample {
		b.WriteString(ActivityLine(a))
		b.WriteByte('\n')
	}

	msgs := append(trimHistory(history), Message{Role: RoleUser, Content: message})

	return Request{
		Model:     settings.Model,
		System:    b.String(),
		Messages:  msgs,
		MaxTokens: settings.MaxTokens,
	}
}

// trimHistory keeps the last maxHistoryTurns valid messages and makes sure the
// conversation starts with a user turn, which every provider requires.
func trimHistory(history []Message) []Message {
	valid := make([]Message, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" || (m.Role != RoleUser && m.Role != RoleAssistant) {
			continue
		}
		valid = append(valid, Message{Role: m.Role, Content: content})
	}
	if len(valid) > maxHistoryTurns {
		valid = valid[len(valid)-maxHistoryTurns:]
	}
	for len(valid) > 0 && valid[0].Role != RoleUser {
		valid = valid[1:]
	}
	return valid
}

func countLine(counts map[string]int, order []string) string {
	keys := make([]string, 0, len(counts))
	known := map[string]bool{}
	for _, k := range order {
		known[k] = true
		keys = append(keys, k)
	}
	var extra []string
	for k := range counts {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
