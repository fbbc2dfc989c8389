package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// leadInfoMaxNameLen guards against treating a whole sentence as the
// pharmacy's name during lead qualification.
const leadInfoMaxNameLen = 50

// dispatch drives the single-pass strategy: classify the message once, then
// route to the email flow, lead qualification, or a generated reply.
func (a *Agent) dispatch(ctx context.Context, userMessage string) string {
	c := a.classifyIntent(ctx, userMessage)
	a.logger.Debug("dispatching message",
		zap.String("intent", c.Intent),
		zap.Float64("confidence", c.Confidence),
	)

	if c.Intent == IntentRequestEmail {
		_, reply := a.handleEmailRequest(ctx, userMessage)
		return reply
	}

	if c.Intent == IntentProvideInfo && a.state.Pharmacy == nil {
		if reply, handled := a.collectLeadInfo(userMessage); handled {
			return reply
		}
	}

	return a.generateReply(ctx)
}

// collectLeadInfo runs the fixed lead-qualification sequence for unidentified
// callers: pharmacy name, then location, then monthly prescription volume.
// It reports false when the message does not advance the sequence.
func (a *Agent) collectLeadInfo(message string) (string, bool) {
	info := a.state.Collected

	if _, ok := info["name"]; !ok && len(message) < leadInfoMaxNameLen {
		info["name"] = message
		return fmt.Sprintf("Thanks for sharing that, %s! Where is your pharmacy located (city and state)?", message), true
	}

	if _, haveName := info["name"]; haveName {
		if _, ok := info["location"]; !ok {
			info["location"] = message
			return "Great! Approximately how many prescriptions does your pharmacy process monthly?", true
		}
	}

	if _, haveLocation := info["location"]; haveLocation {
		if _, ok := info["rx_volume"]; !ok {
			if volume, found := extractVolume(message); found {
				info["rx_volume"] = volume
				return fmt.Sprintf(
					"Thank you! With %d prescriptions, we can definitely help streamline your operations. Our services can help with inventory management, prescription processing automation, and compliance tracking. Would you like me to email you more information?",
					volume,
				), true
			}
		}
	}

	return "", false
}

// extractVolume pulls the first purely numeric token from a message, after
// dropping thousands separators. "around 1,000 a month" yields 1000.
func extractVolume(message string) (int, bool) {
	for _, word := range strings.Fields(strings.ReplaceAll(message, ",", "")) {
		if !isDigits(word) {
			continue
		}
		n, err := strconv.Atoi(word)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// handleEmailRequest drafts and sends the follow-up email, inferring topics of
// interest from the transcript when none were recorded yet.
func (a *Agent) handleEmailRequest(ctx context.Context, userMessage string) (bool, string) {
	if len(a.state.Topics) == 0 {
		a.state.Topics = topicsFromHistory(a.state.History)
	}
	if len(a.state.Topics) == 0 {
		a.state.Topics = []string{"general information", "services"}
	}

	email := a.draftEmail(ctx, userMessage, a.state.Topics)
	receipt := a.sendEmail(email)
	a.state.EmailSent = true

	if receipt.Success {
		return true, fmt.Sprintf(
			"I've sent you an email with detailed information about our pharmacy services to %s. Is there anything specific you'd like me to address in a follow-up call?",
			email.To,
		)
	}
	return false, "I'm sorry, I couldn't send the email at this time. Would you like to schedule a call with one of our specialists instead?"
}

// topicsFromHistory scans the caller's turns for service keywords.
func topicsFromHistory(history []Turn) []string {
	keywords := []string{"inventory", "automation", "compliance", "analytics"}

	var topics []string
	for _, turn := range history {
		if turn.Role != RoleUser {
			continue
		}
		content := strings.ToLower(turn.Content)
		for _, keyword := range keywords {
			if strings.Contains(content, keyword) && !containsString(topics, keyword) {
				topics = append(topics, keyword)
			}
		}
	}
	return topics
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

// generateReply asks the gateway for a free-form reply over the recent
// transcript.
func (a *Agent) generateReply(ctx context.Context) string {
	reply, err := a.gw.CompleteText(ctx,
		a.salesSystemPrompt(),
		toGatewayMessages(a.state.recentHistory(a.historyWindow())),
	)
	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Warn("reply generation failed, using fallback", zap.Error(err))
		return a.fallbackReply()
	}
	return reply
}
