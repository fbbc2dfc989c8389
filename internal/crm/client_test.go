package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

var directoryFixture = []Pharmacy{
	{
		ID:    "1",
		Name:  "HealthFirst Pharmacy",
		City:  "Austin",
		State: "TX",
		Phone: "1-555-123-4567",
		Email: "contact@healthfirst.example",
		Prescriptions: []Prescription{
			{Drug: "Lisinopril", Count: 42},
			{Drug: "Metformin", Count: 38},
		},
	},
	{
		ID:    "2",
		Name:  "City Drug",
		City:  "Boise",
		State: "ID",
		Phone: "(555) 765-4321",
	},
}

// newDirectoryServer mimics the hosted directory: a filtered query returns
// matches, a miss returns a quoted "Not found" string with status 404.
func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			json.NewEncoder(w).Encode(directoryFixture)
			return
		}
		for _, p := range directoryFixture {
			if p.Phone == phone {
				json.NewEncoder(w).Encode([]Pharmacy{p})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode("Not found")
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(baseURL, 5*time.Second, zap.NewNop())
}

func TestFindByPhoneFiltered(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	got, err := c.FindByPhone(context.Background(), "1-555-123-4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "HealthFirst Pharmacy" {
		t.Errorf("expected HealthFirst Pharmacy, got %q", got.Name)
	}
	if got.TotalRxVolume() != 80 {
		t.Errorf("expected volume 80, got %d", got.TotalRxVolume())
	}
}

func TestFindByPhoneScanFallback(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	// Different formatting than the stored record; the filtered query misses
	// and the normalized directory scan finds it.
	got, err := c.FindByPhone(context.Background(), "555-765-4321")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "City Drug" {
		t.Errorf("expected City Drug, got %q", got.Name)
	}
}

func TestFindByPhoneNotFound(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.FindByPhone(context.Background(), "1-555-999-8888")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	srv := newDirectoryServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	pharmacies, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pharmacies) != 2 {
		t.Errorf("expected 2 pharmacies, got %d", len(pharmacies))
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"1-555-123-4567": "15551234567",
		"(555) 765-4321": "5557654321",
		"+1 555.000.111": "1555000111",
		"":               "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTotalRxVolumeNilSafe(t *testing.T) {
	var p *Pharmacy
	if got := p.TotalRxVolume(); got != 0 {
		t.Errorf("expected 0 for a nil record, got %d", got)
	}

	empty := &Pharmacy{Name: "Empty"}
	if got := empty.TotalRxVolume(); got != 0 {
		t.Errorf("expected 0 without prescriptions, got %d", got)
	}
}
