package types

import (
	"testing"
	"time"
)

// TestEntry_Expired tests expiry evaluation against a reference time
func TestEntry_Expired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "zero expiry never expires", expiresAt: time.Time{}, want: false},
		{name: "future expiry not expired", expiresAt: now.Add(time.Minute), want: false},
		{name: "past expiry expired", expiresAt: now.Add(-time.Minute), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Key: "k", ExpiresAt: tt.expiresAt}
			if got := e.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestEntry_Validate tests the validity states for a read
func TestEntry_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		entry       Entry
		contentHash string
		want        LookupState
	}{
		{
			name:        "matching hash is a hit",
			entry:       Entry{ContentHash: "abc"},
			contentHash: "abc",
			want:        LookupHit,
		},
		{
			name:        "empty caller hash skips the gate",
			entry:       Entry{ContentHash: "abc"},
			contentHash: "",
			want:        LookupHit,
		},
		{
			name:        "mismatched hash is stale",
			entry:       Entry{ContentHash: "abc"},
			contentHash: "def",
			want:        LookupStaleHash,
		},
		{
			name:        "expired wins over mismatched hash",
			entry:       Entry{ContentHash: "abc", ExpiresAt: now.Add(-time.Second)},
			contentHash: "def",
			want:        LookupExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Validate(tt.contentHash, now); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestEntry_Touch tests access bookkeeping
func TestEntry_Touch(t *testing.T) {
	e := &Entry{Key: "k"}
	now := time.Now()

	e.Touch(now)
	e.Touch(now.Add(time.Second))

	if e.AccessCount != 2 {
		t.Errorf("expected access count 2, got %d", e.AccessCount)
	}
	if !e.LastAccessed.Equal(now.Add(time.Second)) {
		t.Errorf("expected last accessed %v, got %v", now.Add(time.Second), e.LastAccessed)
	}
}

// TestLookupState_String tests state names used in logs and metrics labels
func TestLookupState_String(t *testing.T) {
	states := map[LookupState]string{
		LookupMiss:      "miss",
		LookupHit:       "hit",
		LookupExpired:   "expired",
		LookupStaleHash: "stale_hash",
		LookupState(42): "unknown",
	}

	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("LookupState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

// TestEntry_ApproxSize tests the stats size approximation
func TestEntry_ApproxSize(t *testing.T) {
	e := &Entry{
		Key:         "key",
		Data:        []byte("0123456789"),
		ContentHash: "hash",
		Metadata:    map[string]string{"a": "b"},
	}

	want := int64(3 + 10 + 4 + 2)
	if got := e.ApproxSize(); got != want {
		t.Errorf("ApproxSize() = %d, want %d", got, want)
	}
}
