package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/pharmesol/pharmabot/internal/config"
	"github.com/pharmesol/pharmabot/internal/crm"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(defaultContracts()...)

	for _, name := range []string{
		ToolLookupPharmacy,
		ToolClassifyIntent,
		ToolDraftEmail,
		ToolSendEmail,
		ToolCalculateVolume,
	} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("expected tool %q to be registered", name)
		}
	}

	if _, ok := r.Lookup("frobnicate"); ok {
		t.Error("unexpected contract for an unregistered tool")
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(defaultContracts()...)
	draft, _ := r.Lookup(ToolDraftEmail)

	missing := r.Validate(draft, map[string]any{})
	if len(missing) != 2 || missing[0] != "topics" || missing[1] != "user_query" {
		t.Errorf("expected sorted missing keys [topics user_query], got %v", missing)
	}

	// Presence is enough; values are not type-checked here.
	missing = r.Validate(draft, map[string]any{"user_query": nil, "topics": 42})
	if len(missing) != 0 {
		t.Errorf("expected no missing keys, got %v", missing)
	}
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry(defaultContracts()...)
	out := r.Describe()

	if !strings.Contains(out, "1. lookup_pharmacy") {
		t.Errorf("expected a numbered listing, got:\n%s", out)
	}
	if !strings.Contains(out, "required args: user_query, topics") {
		t.Errorf("expected required args in the listing, got:\n%s", out)
	}
}

func TestRegistryIgnoresDuplicates(t *testing.T) {
	r := NewRegistry(
		Contract{Name: "a", Description: "first"},
		Contract{Name: "a", Description: "second"},
	)

	c, ok := r.Lookup("a")
	if !ok || c.Description != "first" {
		t.Errorf("expected the first registration to win, got %+v", c)
	}
}

func TestInvokeCalculateVolume(t *testing.T) {
	gw := &stubGateway{}
	a := New(gw, &stubDirectory{err: crm.ErrNotFound}, config.AgentConfig{Mode: config.ModeLoop, HistoryWindow: 5}, nil)

	// Unidentified caller: volume is 0, not an error.
	obs := a.invoke(context.Background(), ToolCalculateVolume, nil)
	if !obs.OK || obs.Result != 0 {
		t.Errorf("expected volume 0 for an unidentified caller, got %+v", obs)
	}

	a.state.Pharmacy = testPharmacy()
	obs = a.invoke(context.Background(), ToolCalculateVolume, nil)
	if !obs.OK || obs.Result != 80 {
		t.Errorf("expected volume 80, got %+v", obs)
	}

	// The calculation is read-only.
	if len(a.state.Pharmacy.Prescriptions) != 2 {
		t.Error("volume calculation must not mutate the record")
	}
}

func TestInvokeLookupFailureIsObservation(t *testing.T) {
	gw := &stubGateway{}
	dir := &stubDirectory{err: crm.ErrNotFound}
	a := New(gw, dir, config.AgentConfig{Mode: config.ModeLoop, HistoryWindow: 5}, nil)

	obs := a.invoke(context.Background(), ToolLookupPharmacy, map[string]any{"phone": "1-555-000-0000"})
	if obs.OK {
		t.Fatal("expected a failed observation")
	}
	if !strings.Contains(obs.Err, "no pharmacy found") {
		t.Errorf("unexpected failure text: %q", obs.Err)
	}
	if a.state.Pharmacy != nil {
		t.Error("a failed lookup must not touch the pharmacy record")
	}
}

func TestToStringSlice(t *testing.T) {
	if got := toStringSlice([]any{"a", 1, "b"}); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected slice from []any: %v", got)
	}
	if got := toStringSlice("solo"); len(got) != 1 || got[0] != "solo" {
		t.Errorf("unexpected slice from string: %v", got)
	}
	if got := toStringSlice(nil); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
}

func TestEmailFromArg(t *testing.T) {
	email, err := emailFromArg(map[string]any{"to": "a@b.example", "subject": "s", "body": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.To != "a@b.example" || email.Body != "hello" {
		t.Errorf("unexpected email: %+v", email)
	}

	email, err = emailFromArg(map[string]any{"subject": "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.To != defaultRecipient {
		t.Errorf("expected the default recipient, got %q", email.To)
	}

	if _, err := emailFromArg(42); err == nil {
		t.Error("expected an error for a non-object payload")
	}
}

func TestRelevantOfferings(t *testing.T) {
	out := relevantOfferings([]string{"inventory"})
	if len(out) != 1 || !strings.Contains(out[0], "inventory management") {
		t.Errorf("unexpected offerings: %v", out)
	}

	// No matches: the full catalogue is offered.
	out = relevantOfferings([]string{"something else"})
	if len(out) != len(serviceOfferings) {
		t.Errorf("expected the full catalogue, got %d entries", len(out))
	}
}
