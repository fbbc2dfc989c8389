package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Tool names. This is the complete, closed set of actions the control loop
// may invoke.
const (
	ToolLookupPharmacy  = "lookup_pharmacy"
	ToolClassifyIntent  = "classify_intent"
	ToolDraftEmail      = "draft_email"
	ToolSendEmail       = "send_email"
	ToolCalculateVolume = "calculate_rx_volume"
)

// Contract declares a tool: its name, what it does, and which argument keys
// must be present before it may be invoked. Contracts are immutable after
// agent construction.
type Contract struct {
	Name        string
	Description string
	Required    []string
}

// Registry is the fixed name -> Contract mapping built at agent construction.
type Registry struct {
	order     []string
	contracts map[string]Contract
}

// NewRegistry builds a registry from the given contracts. Registration only
// happens here; the registry is read-only afterwards.
func NewRegistry(contracts ...Contract) *Registry {
	r := &Registry{contracts: make(map[string]Contract, len(contracts))}
	for _, c := range contracts {
		if _, exists := r.contracts[c.Name]; exists {
			continue
		}
		r.contracts[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r
}

// Lookup resolves a contract by tool name.
func (r *Registry) Lookup(name string) (Contract, bool) {
	c, ok := r.contracts[name]
	return c, ok
}

// Validate checks that every required argument key is present. It returns the
// sorted list of missing keys; value types are not checked here.
func (r *Registry) Validate(c Contract, args map[string]any) []string {
	var missing []string
	for _, key := range c.Required {
		if _, ok := args[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// Describe renders the registry as a numbered list for the decision prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, name := range r.order {
		c := r.contracts[name]
		fmt.Fprintf(&b, "%d. %s: %s", i+1, c.Name, c.Description)
		if len(c.Required) > 0 {
			fmt.Fprintf(&b, " (required args: %s)", strings.Join(c.Required, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// defaultContracts returns the built-in tool set.
func defaultContracts() []Contract {
	return []Contract{
		{
			Name:        ToolLookupPharmacy,
			Description: "Look up a pharmacy in the directory by phone number",
			Required:    []string{"phone"},
		},
		{
			Name:        ToolClassifyIntent,
			Description: "Classify the caller's intent from their latest message",
			Required:    []string{"message"},
		},
		{
			Name:        ToolDraftEmail,
			Description: "Draft a follow-up email covering the caller's query and topics of interest",
			Required:    []string{"user_query", "topics"},
		},
		{
			Name:        ToolSendEmail,
			Description: "Send a previously drafted email to the caller",
			Required:    []string{"email"},
		},
		{
			Name:        ToolCalculateVolume,
			Description: "Calculate the total monthly prescription volume of the identified pharmacy",
		},
	}
}

// Observation is the outcome of executing one tool call.
type Observation struct {
	Tool   string
	OK     bool
	Result any
	Err    string
}

func okObservation(tool string, result any) Observation {
	return Observation{Tool: tool, OK: true, Result: result}
}

func failedObservation(tool, errText string) Observation {
	return Observation{Tool: tool, Err: errText}
}

// invoke executes a validated tool call. Adapter failures are converted to
// failed Observations here; nothing propagates to the loop as an error.
func (a *Agent) invoke(ctx context.Context, name string, args map[string]any) Observation {
	switch name {
	case ToolLookupPharmacy:
		phone, _ := args["phone"].(string)
		pharmacy, err := a.directory.FindByPhone(ctx, phone)
		if err != nil {
			// Transport failures degrade to not-found.
			return failedObservation(name, fmt.Sprintf("no pharmacy found for %q: %v", phone, err))
		}
		return okObservation(name, pharmacy)

	case ToolClassifyIntent:
		message, _ := args["message"].(string)
		return okObservation(name, a.classifyIntent(ctx, message))

	case ToolDraftEmail:
		query, _ := args["user_query"].(string)
		return okObservation(name, a.draftEmail(ctx, query, toStringSlice(args["topics"])))

	case ToolSendEmail:
		email, err := emailFromArg(args["email"])
		if err != nil {
			return failedObservation(name, err.Error())
		}
		return okObservation(name, a.sendEmail(email))

	case ToolCalculateVolume:
		return okObservation(name, a.state.Pharmacy.TotalRxVolume())

	default:
		return failedObservation(name, fmt.Sprintf("tool %q not found", name))
	}
}

// Intent labels produced by the classifier.
const (
	IntentGreeting     = "greeting"
	IntentServices     = "inquiry_services"
	IntentPricing      = "inquiry_pricing"
	IntentIntegration  = "inquiry_integration"
	IntentRequestEmail = "request_email"
	IntentCallback     = "request_callback"
	IntentProvideInfo  = "provide_info"
	IntentFarewell     = "farewell"
	IntentOther        = "other"
)

// Classification is the structured result of the intent classifier.
type Classification struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Info       map[string]any `json:"info,omitempty"`
}

// classifyIntent asks the gateway to classify a caller message. Gateway or
// parse failures substitute the neutral {"other", 0.0} classification.
func (a *Agent) classifyIntent(ctx context.Context, message string) Classification {
	raw, err := a.gw.CompleteJSON(ctx, classifierSystemPrompt, message)
	if err != nil {
		a.logger.Warn("intent classification failed", zap.Error(err))
		return Classification{Intent: IntentOther}
	}

	var c Classification
	if err := json.Unmarshal(raw, &c); err != nil || c.Intent == "" {
		a.logger.Warn("intent classification returned malformed output",
			zap.ByteString("raw", raw),
		)
		return Classification{Intent: IntentOther}
	}
	return c
}

// toStringSlice coerces a decoded JSON value into a string slice.
func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	default:
		return nil
	}
}
