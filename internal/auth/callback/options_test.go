package callback

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestProviderSpecificOptions(t *testing.T) {
	info := &Info{Nickname: "alice", Name: "Alice Smith"}

	tests := []struct {
		name       string
		payload    Payload
		wantName   string
		wantUserID *int64
	}{
		{name: "twitter", payload: Payload{Provider: "twitter", Info: info}, wantName: "alice"},
		{name: "github", payload: Payload{Provider: "github", Info: info}, wantName: "alice"},
		{name: "other", payload: Payload{Provider: "tumblr", Info: info}, wantName: "alice"},
		{
			name: "37signals",
			payload: Payload{
				Provider: "37signals",
				Info:     info,
				Extra:    &Extra{Accounts: []Account{{ID: 1234}, {ID: 5678}}},
			},
			wantName:   "Alice Smith",
			wantUserID: int64Ptr(1234),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ProviderSpecificOptions(tt.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.Name != tt.wantName {
				t.Fatalf("expected name %q, got %q", tt.wantName, opts.Name)
			}
			switch {
			case tt.wantUserID == nil && opts.UserID != nil:
				t.Fatalf("expected no user id, got %d", *opts.UserID)
			case tt.wantUserID != nil && (opts.UserID == nil || *opts.UserID != *tt.wantUserID):
				t.Fatalf("expected user id %d, got %v", *tt.wantUserID, opts.UserID)
			}
		})
	}
}

func TestProviderSpecificOptions_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{name: "no info", payload: Payload{Provider: "github"}},
		{name: "37signals without extra", payload: Payload{Provider: "37signals", Info: &Info{Name: "x"}}},
		{name: "37signals without accounts", payload: Payload{Provider: "37signals", Info: &Info{Name: "x"}, Extra: &Extra{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ProviderSpecificOptions(tt.payload); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestOptionsMap(t *testing.T) {
	m := Options{Name: "alice"}.Map()
	if len(m) != 1 || m["name"] != "alice" {
		t.Fatalf("unexpected map %v", m)
	}
	m = Options{Name: "Alice", UserID: int64Ptr(7)}.Map()
	if m["user_id"] != "7" {
		t.Fatalf("expected user_id 7, got %v", m["user_id"])
	}
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"provider":"github","uid":42}`), &p); err != nil {
		t.Fatalf("unmarshal numeric uid: %v", err)
	}
	if p.UID != "42" {
		t.Fatalf("expected uid 42, got %q", p.UID)
	}
	if err := json.Unmarshal([]byte(`{"provider":"github","uid":"abc"}`), &p); err != nil {
		t.Fatalf("unmarshal string uid: %v", err)
	}
	if p.UID != "abc" {
		t.Fatalf("expected uid abc, got %q", p.UID)
	}
	if err := json.Unmarshal([]byte(`{"uid":{"x":1}}`), &p); err == nil {
		t.Fatal("expected error for object uid")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf("GitHub") != KindGitHub || KindOf("37signals") != KindThirtySevenSignals || KindOf("foo") != KindGeneric {
		t.Fatal("unexpected kind mapping")
	}
}

func int64Ptr(v int64) *int64 { return &v }
