// Package prompt builds the message sequence sent to the completion model.
package prompt

import (
	"slices"
	"strings"

	"github.com/ziadkadry99/kisan-mitra/internal/history"
	"github.com/ziadkadry99/kisan-mitra/internal/llm"
)

// NoFactsPlaceholder stands in for the fact list of a farmer with no facts.
const NoFactsPlaceholder = "- No saved facts."

const (
	systemIntro = "You are a farmer assistant. You have access to the following long-term facts about the farmer:\n\n"
	systemOutro = "\n\nUse these facts to answer farmer queries accurately. Do not invent facts; ask clarifying questions if unsure."
)

// Template is a composed system prompt awaiting history and input.
type Template struct {
	system     string
	maxHistory int
}

// Compose renders facts, sorted, into the system prompt.
func Compose(facts []string) *Template {
	return &Template{system: systemIntro + FormatFacts(facts) + systemOutro}
}

// WithHistoryWindow limits Messages to the n most recent history entries.
// n <= 0 keeps all history.
func (t *Template) WithHistoryWindow(n int) *Template {
	t.maxHistory = n
	return t
}

// System returns the rendered system message.
func (t *Template) System() string {
	return t.system
}

// Messages returns the system message, the session history and the new input.
func (t *Template) Messages(hist []history.Message, input string) []llm.Message {
	if t.maxHistory > 0 && len(hist) > t.maxHistory {
		hist = hist[len(hist)-t.maxHistory:]
	}

	msgs := make([]llm.Message, 0, len(hist)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: t.system})
	for _, h := range hist {
		role := llm.RoleUser
		if h.Role == history.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: input})
	return msgs
}

// FormatFacts renders facts as a sorted bullet list.
func FormatFacts(facts []string) string {
	if len(facts) == 0 {
		return NoFactsPlaceholder
	}
	sorted := slices.Clone(facts)
	slices.Sort(sorted)

	var b strings.Builder
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f)
	}
	return b.String()
}
