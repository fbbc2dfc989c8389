package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pharmesol/pharmabot/internal/crm"
)

const classifierSystemPrompt = `You are an intent classifier for a pharmacy services sales agent. Classify the caller's message into exactly one of these categories:
- greeting: Initial greetings or hellos
- inquiry_services: Questions about services offered
- inquiry_pricing: Questions about pricing or costs
- inquiry_integration: Questions about system integration
- request_email: Requesting information via email
- request_callback: Requesting a callback or phone meeting
- provide_info: Providing information about their pharmacy
- farewell: Ending the conversation
- other: None of the above

Respond with a JSON object like {"intent": "category_name", "confidence": 0.95}.
When the caller provides facts about their pharmacy, include them under an "info" object, e.g. {"intent": "provide_info", "confidence": 0.9, "info": {"name": "City Pharmacy"}}.`

// salesSystemPrompt builds the persona prompt for free-text replies. When a
// pharmacy record is resolved, the prompt instructs the model to personalize
// every reply with the pharmacy's name and details.
func (a *Agent) salesSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a helpful pharmacy services sales agent representing Pharmesol. ")
	b.WriteString("You answer questions about the services you offer to incoming calls from prospective pharmacies.\n")

	if p := a.state.Pharmacy; p != nil {
		fmt.Fprintf(&b, "\nYou're speaking with %s from %s, %s.\n", p.Name, p.City, p.State)
		fmt.Fprintf(&b, "Their prescription volume is approximately %d prescriptions.\n", p.TotalRxVolume())
		if drugs := drugNames(p); len(drugs) > 0 {
			fmt.Fprintf(&b, "Their most prescribed medications are: %s.\n", strings.Join(drugs, ", "))
		}
		b.WriteString("Always mention the pharmacy by name in your response and their location; use all available information to make the caller feel noticed and welcome.\n")
	}

	b.WriteString(`
Be professional but conversational. Your goal is to understand their needs and guide them to our pharmacy services.

Key services to emphasize:
1. Prescription processing automation
2. Inventory management
3. Compliance tracking
4. Patient communication tools

Benefits to mention:
- 30% reduction in processing time
- 15-20% cost savings
- Improved accuracy and patient satisfaction

Always look for opportunities to gather information about their pharmacy and tailor your responses.
`)
	return b.String()
}

// decisionSystemPrompt instructs the gateway to pick the next loop step as a
// JSON object.
func decisionSystemPrompt(registry *Registry) string {
	return fmt.Sprintf(`You are the reasoning engine of a pharmacy services sales agent. Given the conversation state, decide the single next step.

Available tools:
%s
Respond with a JSON object:
{"reasoning": "why", "action": "use_tool" | "continue", "tool": "tool_name", "args": {...}}

Use action "use_tool" with a tool name and its required args when more information or a side effect is needed. Use action "continue" with no tool when you are ready to answer the caller.`, registry.Describe())
}

// decisionUserPrompt renders the state snapshot the gateway decides from.
func decisionUserPrompt(state *State, prev *Observation, window int) string {
	var b strings.Builder

	b.WriteString("Conversation so far:\n")
	for _, turn := range state.recentHistory(window) {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}

	writeStateSnapshot(&b, state)
	writeLastObservation(&b, prev)

	b.WriteString("\nDecide the next step.")
	return b.String()
}

// writeStateSnapshot renders the session state (pharmacy, collected info,
// topics, sent flag) for both the decision prompt and the reply prompt.
func writeStateSnapshot(b *strings.Builder, state *State) {
	if p := state.Pharmacy; p != nil {
		fmt.Fprintf(b, "\nIdentified pharmacy: %s (%s, %s), ~%d prescriptions/month.\n",
			p.Name, p.City, p.State, p.TotalRxVolume())
	} else {
		b.WriteString("\nCaller's pharmacy is not identified yet.\n")
	}

	if len(state.Collected) > 0 {
		raw, _ := json.Marshal(state.Collected)
		fmt.Fprintf(b, "Collected info: %s\n", raw)
	}
	if len(state.Topics) > 0 {
		fmt.Fprintf(b, "Topics of interest: %s\n", strings.Join(state.Topics, ", "))
	}
	if state.EmailSent {
		b.WriteString("An email has already been sent to the caller this session; do not send another.\n")
	}
}

// writeLastObservation renders the most recent tool outcome, if any.
func writeLastObservation(b *strings.Builder, prev *Observation) {
	if prev == nil {
		return
	}
	if prev.OK {
		fmt.Fprintf(b, "\nLast tool (%s) result: %s\n", prev.Tool, describeResult(prev.Result))
	} else {
		fmt.Fprintf(b, "\nLast tool (%s) failed: %s\n", prev.Tool, prev.Err)
	}
}

// replyContext extends the persona prompt for finalization with the same
// state snapshot the decision prompt carries, plus the terminal decision and
// last tool outcome.
func replyContext(state *State, dec Decision, prev *Observation) string {
	var b strings.Builder
	b.WriteString("\nSession context:\n")
	writeStateSnapshot(&b, state)
	if dec.Reasoning != "" {
		fmt.Fprintf(&b, "Your assessment of the conversation: %s\n", dec.Reasoning)
	}
	writeLastObservation(&b, prev)
	return b.String()
}

// emailSystemPrompt builds the email-writer prompt.
func emailSystemPrompt(p *crm.Pharmacy, query string, offerings []string) string {
	name := "your pharmacy"
	location := ""
	volume := "your pharmacy"
	if p != nil {
		if p.Name != "" {
			name = p.Name
		}
		if p.City != "" && p.State != "" {
			location = fmt.Sprintf("as a pharmacy in %s, %s", p.City, p.State)
		}
		if v := p.TotalRxVolume(); v > 0 {
			volume = fmt.Sprintf("%d", v)
		}
	}

	return fmt.Sprintf(`You are an email writer for a pharmacy services company.
Create a professional, concise follow-up email for a pharmacy that contacted our sales team.

Use these details to personalize the email:
- Pharmacy name: %s
- Location: %s
- Prescription volume: %s

Include these service offerings:
%s

The email should:
1. Be professional but warm
2. Address their specific query: %q
3. Highlight how our services can help them based on their prescription volume
4. Include a clear call to action`,
		name, location, volume, strings.Join(offerings, " "), query)
}

// templateEmailBody is the fallback body used when the gateway cannot draft
// one.
func templateEmailBody(p *crm.Pharmacy) string {
	greeting := "Dear Pharmacy Team,"
	if p != nil && p.Name != "" {
		greeting = fmt.Sprintf("Dear %s team,", p.Name)
	}
	return greeting + "\n\n" +
		"Thank you for your interest in our pharmacy services. We specialize in helping pharmacies like yours improve efficiency and reduce costs.\n\n" +
		"I'd be happy to schedule a call to discuss how we can help your pharmacy specifically.\n\n" +
		"Best regards,\nThe Sales Team"
}

// drugNames lists the drugs on a pharmacy's prescription records.
func drugNames(p *crm.Pharmacy) []string {
	out := make([]string, 0, len(p.Prescriptions))
	for _, rx := range p.Prescriptions {
		out = append(out, rx.Drug)
	}
	return out
}

// describeResult renders a tool result for prompts and transcript summaries.
func describeResult(v any) string {
	switch r := v.(type) {
	case nil:
		return "none"
	case string:
		return r
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
