package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pharmesol/pharmabot/internal/config"
	"github.com/pharmesol/pharmabot/internal/crm"
	"github.com/pharmesol/pharmabot/internal/gateway"
)

// stubGateway answers CompleteJSON from a FIFO queue of canned responses.
// When the queue is empty (or fixed is set) it returns a constant response.
type stubGateway struct {
	responses []string
	fixed     string
	jsonErr   error
	jsonCalls int

	textReply  string
	textErr    error
	textCalls  int
	textSystem string
	textMsgs   []gateway.Message
}

func (s *stubGateway) CompleteText(ctx context.Context, system string, msgs []gateway.Message) (string, error) {
	s.textCalls++
	s.textSystem = system
	s.textMsgs = msgs
	return s.textReply, s.textErr
}

func (s *stubGateway) CompleteJSON(ctx context.Context, system, user string) ([]byte, error) {
	s.jsonCalls++
	if s.jsonErr != nil {
		return nil, s.jsonErr
	}
	if s.fixed != "" {
		return []byte(s.fixed), nil
	}
	if len(s.responses) == 0 {
		return []byte(`{"action":"continue"}`), nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return []byte(next), nil
}

// stubDirectory returns a fixed pharmacy or error.
type stubDirectory struct {
	pharmacy *crm.Pharmacy
	err      error
}

func (d *stubDirectory) FindByPhone(ctx context.Context, phone string) (*crm.Pharmacy, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.pharmacy, nil
}

func newLoopAgent(gw *stubGateway, dir *stubDirectory) *Agent {
	if dir == nil {
		dir = &stubDirectory{err: crm.ErrNotFound}
	}
	cfg := config.AgentConfig{Mode: config.ModeLoop, HistoryWindow: 5}
	return New(gw, dir, cfg, nil)
}

func testPharmacy() *crm.Pharmacy {
	return &crm.Pharmacy{
		ID:    "1",
		Name:  "HealthFirst Pharmacy",
		City:  "Austin",
		State: "TX",
		Phone: "1-555-123-4567",
		Email: "contact@healthfirst.example",
		Prescriptions: []crm.Prescription{
			{Drug: "Lisinopril", Count: 42},
			{Drug: "Metformin", Count: 38},
		},
	}
}

func TestLoopIterationCap(t *testing.T) {
	gw := &stubGateway{
		fixed:     `{"action":"use_tool","tool":"calculate_rx_volume"}`,
		textReply: "Happy to help with your pharmacy needs.",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "tell me about your services")

	if gw.jsonCalls != maxLoopIterations {
		t.Errorf("expected exactly %d decisions, got %d", maxLoopIterations, gw.jsonCalls)
	}
	if reply == "" {
		t.Error("expected a non-empty reply")
	}
}

func TestLoopTerminatesOnContinue(t *testing.T) {
	gw := &stubGateway{
		responses: []string{`{"action":"continue","reasoning":"ready to answer"}`},
		textReply: "We offer inventory management and automation.",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "what do you offer?")

	if gw.jsonCalls != 1 {
		t.Errorf("expected 1 decision, got %d", gw.jsonCalls)
	}
	if reply != "We offer inventory management and automation." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestLoopDecisionFailureFallsBack(t *testing.T) {
	gw := &stubGateway{
		jsonErr:   fmt.Errorf("gateway down"),
		textReply: "Let me tell you about our services.",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "hello")

	if gw.jsonCalls != 1 {
		t.Errorf("expected 1 decision attempt, got %d", gw.jsonCalls)
	}
	if reply != "Let me tell you about our services." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestLoopMalformedDecisionFallsBack(t *testing.T) {
	gw := &stubGateway{
		responses: []string{`{"this is": "not a decision"}`},
		textReply: "How can I help?",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "hello")

	if reply != "How can I help?" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestLoopUnknownToolIsRecoverable(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"frobnicate","args":{}}`,
			`{"action":"continue"}`,
		},
		textReply: "Here is what we offer.",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "do something odd")

	if reply == "" {
		t.Fatal("expected a non-empty reply")
	}
	if !transcriptContains(a.state, `tool "frobnicate" not found`) {
		t.Error("expected the unknown-tool failure on the transcript")
	}
}

func TestLoopMissingArgsNamesFields(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"send_email","args":{}}`,
			`{"action":"continue"}`,
		},
		textReply: "Anything else I can help with?",
	}
	a := newLoopAgent(gw, nil)

	a.ProcessMessage(context.Background(), "email me")

	if !transcriptContains(a.state, "missing required arguments: email") {
		t.Error("expected the missing-argument failure to name the field")
	}
	if a.state.EmailSent {
		t.Error("a rejected send must not set the sent flag")
	}
}

func TestLoopSendEmailFlow(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"draft_email","args":{"user_query":"pricing info","topics":["automation"]}}`,
			`{"action":"use_tool","tool":"send_email","args":{"email":{"to":"owner@rx.example","subject":"Services","body":"..."}}}`,
			`{"action":"continue"}`,
		},
		textReply: "drafted body",
	}
	a := newLoopAgent(gw, nil)

	reply := a.ProcessMessage(context.Background(), "please email me pricing info")

	if !a.state.EmailSent {
		t.Fatal("expected the sent flag to be set")
	}
	if !strings.Contains(reply, "I've sent you an email") {
		t.Errorf("expected a send confirmation, got %q", reply)
	}
	if !strings.Contains(reply, "owner@rx.example") {
		t.Errorf("expected the confirmation to name the recipient, got %q", reply)
	}
	if len(a.state.Topics) == 0 || a.state.Topics[0] != "automation" {
		t.Errorf("expected drafted topics to be recorded, got %v", a.state.Topics)
	}
}

func TestLoopSuppressesRepeatSend(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"send_email","args":{"email":{"to":"x@y.example"}}}`,
		},
		textReply: "The email is already on its way.",
	}
	a := newLoopAgent(gw, nil)
	a.state.EmailSent = true

	reply := a.ProcessMessage(context.Background(), "send it again")

	if gw.jsonCalls != 1 {
		t.Errorf("expected the loop to stop after the suppressed decision, got %d decisions", gw.jsonCalls)
	}
	if transcriptContains(a.state, "[send_email]") {
		t.Error("a suppressed send must not execute")
	}
	if reply == "" {
		t.Error("expected a non-empty reply")
	}
}

func TestLoopLookupUpdatesPharmacy(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"lookup_pharmacy","args":{"phone":"1-555-123-4567"}}`,
			`{"action":"continue"}`,
		},
		textReply: "Welcome back, HealthFirst Pharmacy!",
	}
	dir := &stubDirectory{pharmacy: testPharmacy()}
	a := newLoopAgent(gw, dir)

	a.ProcessMessage(context.Background(), "hi, calling from HealthFirst")

	if a.state.Pharmacy == nil {
		t.Fatal("expected the lookup to populate the pharmacy record")
	}
	if a.state.Pharmacy.Name != "HealthFirst Pharmacy" {
		t.Errorf("unexpected pharmacy: %q", a.state.Pharmacy.Name)
	}
}

func TestLoopClassifyMergesProvidedInfo(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"classify_intent","args":{"message":"we are City Drug in Boise"}}`,
			`{"intent":"provide_info","confidence":0.9,"info":{"name":"City Drug","location":"Boise, ID"}}`,
			`{"action":"continue"}`,
		},
		textReply: "Thanks for the details!",
	}
	a := newLoopAgent(gw, nil)

	a.ProcessMessage(context.Background(), "we are City Drug in Boise")

	if got := a.state.Collected["name"]; got != "City Drug" {
		t.Errorf("expected collected name, got %v", got)
	}
	if got := a.state.Collected["location"]; got != "Boise, ID" {
		t.Errorf("expected collected location, got %v", got)
	}
}

func TestLoopClassifyRequestEmailMarksInterest(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"classify_intent","args":{"message":"email me the details"}}`,
			`{"intent":"request_email","confidence":0.95}`,
			`{"action":"continue"}`,
		},
		textReply: "Of course.",
	}
	a := newLoopAgent(gw, nil)

	a.ProcessMessage(context.Background(), "email me the details")

	if got, ok := a.state.Collected["requested_email"].(bool); !ok || !got {
		t.Errorf("expected requested_email to be recorded, got %v", a.state.Collected["requested_email"])
	}
}

func TestLoopObservationRecordsReasoning(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"calculate_rx_volume","reasoning":"need the caller's prescription volume first"}`,
			`{"action":"continue"}`,
		},
		textReply: "You handle quite a volume!",
	}
	a := newLoopAgent(gw, nil)

	a.ProcessMessage(context.Background(), "how would pricing work for us?")

	if !transcriptContains(a.state, "[calculate_rx_volume]") {
		t.Fatal("expected the tool outcome on the transcript")
	}
	if !transcriptContains(a.state, "need the caller's prescription volume first") {
		t.Error("expected the decision's reasoning on the transcript entry")
	}
}

func TestLoopObservationRecordsReasoningOnFailure(t *testing.T) {
	gw := &stubGateway{
		responses: []string{
			`{"action":"use_tool","tool":"send_email","args":{},"reasoning":"caller asked for a follow-up email"}`,
			`{"action":"continue"}`,
		},
		textReply: "I still need your address.",
	}
	a := newLoopAgent(gw, nil)

	a.ProcessMessage(context.Background(), "email me")

	if !transcriptContains(a.state, "missing required arguments: email") {
		t.Fatal("expected the failed outcome on the transcript")
	}
	if !transcriptContains(a.state, "caller asked for a follow-up email") {
		t.Error("expected the decision's reasoning on the failure entry")
	}
}

func TestFinalizationPromptCarriesSessionState(t *testing.T) {
	gw := &stubGateway{
		responses: []string{`{"action":"continue","reasoning":"ready to summarize the offer"}`},
		textReply: "Here is a summary of what we discussed.",
	}
	a := newLoopAgent(gw, nil)
	a.state.Collected["name"] = "City Drug"
	a.state.Collected["rx_volume"] = 1200
	a.state.Topics = append(a.state.Topics, "automation")
	a.state.EmailSent = true

	a.ProcessMessage(context.Background(), "can you recap?")

	if gw.textCalls != 1 {
		t.Fatalf("expected one reply completion, got %d", gw.textCalls)
	}
	for _, want := range []string{
		"Collected info:",
		"City Drug",
		"Topics of interest: automation",
		"An email has already been sent",
		"ready to summarize the offer",
	} {
		if !strings.Contains(gw.textSystem, want) {
			t.Errorf("expected the reply prompt to carry %q", want)
		}
	}
}

// transcriptContains reports whether any transcript entry contains substr.
func transcriptContains(s *State, substr string) bool {
	for _, turn := range s.History {
		if strings.Contains(turn.Content, substr) {
			return true
		}
	}
	return false
}
