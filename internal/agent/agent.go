// Package agent implements the conversation engine: a registry of tools, a
// mutable per-session state, and two interchangeable reply strategies (an
// iterative tool-calling loop and a single-pass intent dispatcher).
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/config"
	"github.com/pharmesol/pharmabot/internal/crm"
	"github.com/pharmesol/pharmabot/internal/gateway"
)

// Gateway is the text-generation surface the engine depends on. The production
// implementation is gateway.Client; tests substitute stubs.
type Gateway interface {
	CompleteText(ctx context.Context, system string, msgs []gateway.Message) (string, error)
	CompleteJSON(ctx context.Context, system, user string) ([]byte, error)
}

// Directory resolves callers to pharmacy records.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (*crm.Pharmacy, error)
}

// Agent drives one conversation session. It is not safe for concurrent use;
// callers serialize access per session.
type Agent struct {
	gw        Gateway
	directory Directory
	cfg       config.AgentConfig
	logger    *zap.Logger
	registry  *Registry
	state     *State

	// lastRecipient remembers where the most recent email went so the
	// confirmation reply can name the address.
	lastRecipient string
}

// New constructs an agent with the built-in tool set and empty state.
func New(gw Gateway, directory Directory, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		gw:        gw,
		directory: directory,
		cfg:       cfg,
		logger:    logger,
		registry:  NewRegistry(defaultContracts()...),
		state:     NewState(),
	}
}

// State exposes the session state for persistence and inspection.
func (a *Agent) State() *State {
	return a.state
}

// Restore replaces the agent's state, e.g. when resuming a stored session.
func (a *Agent) Restore(s *State) {
	if s == nil {
		return
	}
	if s.Collected == nil {
		s.Collected = make(map[string]any)
	}
	a.state = s
}

// HandleIncomingCall opens a session for the given caller number. A directory
// hit yields a personalized greeting naming the pharmacy and its prescription
// volume; otherwise the caller is asked for their pharmacy's name.
func (a *Agent) HandleIncomingCall(ctx context.Context, phone string) string {
	pharmacy, err := a.directory.FindByPhone(ctx, phone)
	if err == nil && pharmacy != nil {
		a.state.Pharmacy = pharmacy
		greeting := fmt.Sprintf(
			"Hello, thanks for calling! I see you're calling from %s. I notice you handle about %d prescriptions. How can I assist you today with our pharmacy services?",
			pharmacy.Name, pharmacy.TotalRxVolume(),
		)
		a.state.appendTurn(RoleAssistant, greeting)
		a.logger.Info("incoming call from known pharmacy",
			zap.String("phone", phone),
			zap.String("pharmacy", pharmacy.Name),
		)
		return greeting
	}

	if err != nil && !errors.Is(err, crm.ErrNotFound) {
		a.logger.Warn("pharmacy lookup failed, treating caller as unknown",
			zap.String("phone", phone),
			zap.Error(err),
		)
	}

	greeting := "Hello, thanks for calling our pharmacy services! I'd be happy to tell you about how we can help your pharmacy. Could I get the name of your pharmacy, please?"
	a.state.appendTurn(RoleAssistant, greeting)
	return greeting
}

// ProcessMessage handles one caller message and always returns a non-empty
// reply. The strategy is picked by config: the tool-calling loop or the
// single-pass dispatcher.
func (a *Agent) ProcessMessage(ctx context.Context, text string) string {
	a.state.appendTurn(RoleUser, text)

	var reply string
	if a.cfg.Mode == config.ModeDirect {
		reply = a.dispatch(ctx, text)
	} else {
		reply = a.runLoop(ctx)
	}

	a.state.appendTurn(RoleAssistant, reply)
	return reply
}

func (a *Agent) historyWindow() int {
	if a.cfg.HistoryWindow > 0 {
		return a.cfg.HistoryWindow
	}
	return 5
}

// fallbackReply is the reply of last resort when the gateway is unavailable.
func (a *Agent) fallbackReply() string {
	if p := a.state.Pharmacy; p != nil && p.Name != "" {
		return fmt.Sprintf("I apologize for the technical difficulties, %s. How can I help you with your pharmacy needs today?", p.Name)
	}
	return "I apologize for the technical difficulties. How can I help you with your pharmacy needs today?"
}

// toGatewayMessages converts transcript turns into the gateway message format.
func toGatewayMessages(turns []Turn) []gateway.Message {
	out := make([]gateway.Message, len(turns))
	for i, t := range turns {
		out[i] = gateway.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
