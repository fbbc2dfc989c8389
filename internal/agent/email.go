package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmesol/pharmabot/internal/gateway"
)

const (
	defaultRecipient    = "customer@example.com"
	defaultEmailSubject = "Information About Our Pharmacy Services"
)

// serviceOfferings maps topic keywords to the service blurbs the email
// drafter can include.
var serviceOfferings = map[string]string{
	"inventory":  "Our inventory management system helps reduce waste and ensures you never run out of critical medications.",
	"automation": "Our prescription processing automation reduces manual entry errors by up to 80% and saves staff time.",
	"compliance": "Our compliance tracking system keeps you updated with changing regulations and helps prevent costly violations.",
	"analytics":  "Our analytics dashboard gives you insights into prescription trends, patient demographics, and business performance.",
}

// Email is an outbound message drafted for the caller.
type Email struct {
	To      string   `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Topics  []string `json:"topics,omitempty"`
}

// DeliveryReceipt reports the outcome of a send attempt.
type DeliveryReceipt struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// draftEmail produces a follow-up email for the caller's query and topics.
// It always returns a usable Email: when the gateway fails, the body falls
// back to a generic template.
func (a *Agent) draftEmail(ctx context.Context, query string, topics []string) Email {
	offerings := relevantOfferings(topics)

	email := Email{
		To:      defaultRecipient,
		Subject: defaultEmailSubject,
		Topics:  topics,
	}
	if a.state.Pharmacy != nil && a.state.Pharmacy.Email != "" {
		email.To = a.state.Pharmacy.Email
	}

	body, err := a.gw.CompleteText(ctx,
		emailSystemPrompt(a.state.Pharmacy, query, offerings),
		[]gateway.Message{{Role: RoleUser, Content: "Generate a follow-up email."}},
	)
	if err != nil || strings.TrimSpace(body) == "" {
		a.logger.Warn("email drafting failed, using template body", zap.Error(err))
		body = templateEmailBody(a.state.Pharmacy)
	}
	email.Body = body

	a.logger.Debug("email drafted",
		zap.String("to", email.To),
		zap.Strings("topics", topics),
	)
	return email
}

// sendEmail mocks delivery. No mail leaves the process; the receipt reports
// success so the rest of the pipeline behaves as in production.
func (a *Agent) sendEmail(email Email) DeliveryReceipt {
	a.lastRecipient = email.To
	a.logger.Info("outbound email sent (mock)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return DeliveryReceipt{
		Success:   true,
		Message:   fmt.Sprintf("Email sent successfully to %s", email.To),
		Timestamp: time.Now(),
	}
}

// relevantOfferings selects service blurbs matching the given topics,
// defaulting to the full catalogue when nothing matches.
func relevantOfferings(topics []string) []string {
	var out []string
	for _, topic := range topics {
		t := strings.ToLower(topic)
		for key, blurb := range serviceOfferings {
			if strings.Contains(key, t) || strings.Contains(t, key) {
				out = append(out, blurb)
			}
		}
	}
	if len(out) == 0 {
		for _, key := range []string{"inventory", "automation", "compliance", "analytics"} {
			out = append(out, serviceOfferings[key])
		}
	}
	return out
}

// emailFromArg coerces a tool argument into an Email. The control loop hands
// the argument through as whatever the gateway produced, so both a typed
// Email and a decoded JSON object must be accepted.
func emailFromArg(v any) (Email, error) {
	switch e := v.(type) {
	case Email:
		return e, nil
	case map[string]any:
		raw, err := json.Marshal(e)
		if err != nil {
			return Email{}, fmt.Errorf("invalid email payload: %w", err)
		}
		var out Email
		if err := json.Unmarshal(raw, &out); err != nil {
			return Email{}, fmt.Errorf("invalid email payload: %w", err)
		}
		if out.To == "" {
			out.To = defaultRecipient
		}
		return out, nil
	default:
		return Email{}, fmt.Errorf("invalid email payload of type %T", v)
	}
}
