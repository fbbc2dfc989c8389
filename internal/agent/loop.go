package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/crm"
)

// maxLoopIterations caps the decide/act cycle so a misbehaving gateway cannot
// run the session forever.
const maxLoopIterations = 5

// Loop actions. Anything else in a decision is treated as "continue".
const (
	ActionUseTool  = "use_tool"
	ActionContinue = "continue"
)

// Decision is the gateway's choice of next loop step.
type Decision struct {
	Reasoning string         `json:"reasoning"`
	Action    string         `json:"action"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
}

// runLoop drives the iterative strategy for the latest user turn: ask the
// gateway what to do, execute the chosen tool, fold the observation into
// state, repeat until the gateway is ready to answer or the iteration cap is
// hit, then compose the reply.
func (a *Agent) runLoop(ctx context.Context) string {
	var prev *Observation
	var last Decision

	for i := 1; i <= maxLoopIterations; i++ {
		dec := a.decide(ctx, prev)

		// Sending twice in one session is never allowed, whatever the
		// gateway decided.
		if a.state.EmailSent && dec.Tool == ToolSendEmail {
			a.logger.Debug("suppressing repeat send_email decision")
			dec = Decision{Reasoning: dec.Reasoning, Action: ActionContinue}
		}
		last = dec

		if dec.Action != ActionUseTool || dec.Tool == "" {
			break
		}

		obs := a.act(ctx, dec)
		a.observe(dec, obs)
		prev = &obs

		a.logger.Debug("loop iteration",
			zap.Int("iteration", i),
			zap.String("tool", obs.Tool),
			zap.Bool("ok", obs.OK),
		)
	}

	return a.finalize(ctx, last, prev)
}

// decide asks the gateway for the next step. Gateway failures and malformed
// output both degrade to a terminal "continue" decision so the caller always
// gets an answer.
func (a *Agent) decide(ctx context.Context, prev *Observation) Decision {
	raw, err := a.gw.CompleteJSON(ctx,
		decisionSystemPrompt(a.registry),
		decisionUserPrompt(a.state, prev, a.historyWindow()),
	)
	if err != nil {
		a.logger.Warn("decision request failed", zap.Error(err))
		return Decision{Action: ActionContinue}
	}

	var dec Decision
	if err := json.Unmarshal(raw, &dec); err != nil || dec.Action == "" {
		a.logger.Warn("malformed decision output", zap.ByteString("raw", raw))
		return Decision{Action: ActionContinue}
	}
	return dec
}

// act resolves and validates the decided tool call, then executes it. Unknown
// tools and missing arguments come back as failed Observations the next
// decision can recover from.
func (a *Agent) act(ctx context.Context, dec Decision) Observation {
	contract, ok := a.registry.Lookup(dec.Tool)
	if !ok {
		return failedObservation(dec.Tool, fmt.Sprintf("tool %q not found", dec.Tool))
	}
	if missing := a.registry.Validate(contract, dec.Args); len(missing) > 0 {
		return failedObservation(dec.Tool,
			"missing required arguments: "+strings.Join(missing, ", "))
	}
	return a.invoke(ctx, dec.Tool, dec.Args)
}

// observe folds a tool outcome into session state and records it on the
// transcript so later iterations (and the final reply) can see it. The entry
// carries the decision's reasoning next to the result or error.
func (a *Agent) observe(dec Decision, obs Observation) {
	if obs.OK {
		switch obs.Tool {
		case ToolLookupPharmacy:
			if p, ok := obs.Result.(*crm.Pharmacy); ok && p != nil {
				a.state.Pharmacy = p
			}
		case ToolClassifyIntent:
			if c, ok := obs.Result.(Classification); ok {
				switch c.Intent {
				case IntentProvideInfo:
					for k, v := range c.Info {
						a.state.Collected[k] = v
					}
				case IntentRequestEmail:
					a.state.Collected["requested_email"] = true
				}
			}
		case ToolDraftEmail:
			if e, ok := obs.Result.(Email); ok {
				a.state.Topics = append(a.state.Topics, e.Topics...)
			}
		case ToolSendEmail:
			a.state.EmailSent = true
		}
	}

	entry := fmt.Sprintf("[%s] %s", obs.Tool, describeResult(obs.Result))
	if !obs.OK {
		entry = fmt.Sprintf("[%s] error: %s", obs.Tool, obs.Err)
	}
	if dec.Reasoning != "" {
		entry = fmt.Sprintf("%s (reasoning: %s)", entry, dec.Reasoning)
	}
	a.state.appendTurn(RoleAssistant, entry)
}

// finalize composes the reply for the caller once the loop has stopped. A
// successful send short-circuits to the canonical confirmation; otherwise the
// gateway writes the reply from the persona prompt, the terminal decision,
// the last observation, and the full state snapshot, with a fixed apology as
// last resort.
func (a *Agent) finalize(ctx context.Context, dec Decision, prev *Observation) string {
	if prev != nil && prev.OK && prev.Tool == ToolSendEmail {
		return fmt.Sprintf(
			"I've sent you an email with detailed information about our pharmacy services to %s. Is there anything specific you'd like me to address in a follow-up call?",
			a.lastRecipient,
		)
	}

	reply, err := a.gw.CompleteText(ctx,
		a.salesSystemPrompt()+replyContext(a.state, dec, prev),
		toGatewayMessages(a.state.recentHistory(a.historyWindow())),
	)
	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Warn("reply generation failed, using fallback", zap.Error(err))
		return a.fallbackReply()
	}
	return reply
}
