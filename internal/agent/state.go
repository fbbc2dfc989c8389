package agent

import (
	"github.com/pharmesol/pharmabot/internal/crm"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one transcript entry. The transcript is append-only; turns are
// never removed or edited, only a bounded suffix is sent to the gateway.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the mutable per-session conversation state.
type State struct {
	// History is the full conversation transcript in insertion order.
	History []Turn

	// Pharmacy is the resolved directory record, or nil for an unidentified
	// caller. Replaced wholesale on a successful lookup, never partially
	// mutated.
	Pharmacy *crm.Pharmacy

	// Collected holds lead-qualification fields gathered from an
	// unidentified caller. Keys only ever accumulate within a session.
	Collected map[string]any

	// Topics are the caller's expressed topics of interest. Duplicates are
	// allowed; ordering reflects when each topic surfaced.
	Topics []string

	// EmailSent records that the outbound email side effect already
	// happened. Once true it stays true for the whole session.
	EmailSent bool
}

// NewState returns an empty conversation state.
func NewState() *State {
	return &State{
		Collected: make(map[string]any),
	}
}

// appendTurn adds a transcript entry.
func (s *State) appendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
}

// recentHistory returns the trailing window of the transcript used when
// composing gateway prompts.
func (s *State) recentHistory(window int) []Turn {
	if window <= 0 || len(s.History) <= window {
		return s.History
	}
	return s.History[len(s.History)-window:]
}
