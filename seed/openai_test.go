package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"sigforge/core"
)

func testClientRule() *core.Rule {
	return &core.Rule{
		ID:        "rule-1",
		Title:     "CloudTrail tampering",
		Level:     "high",
		Condition: "selection",
		Selections: map[string]core.Selection{
			"selection": {Entries: []core.FieldMap{{"eventName": "DeleteTrail"}}},
		},
	}
}

func completionBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

const wellFormedContent = `POSITIVE:
[{"eventName": "DeleteTrail", "awsRegion": "us-east-1"}]

NEGATIVE:
[{"eventName": "DescribeTrails", "awsRegion": "us-east-1"}]`

// TestClient_GetSeeds verifies a successful round trip: prompt out, labeled
// seeds back.
func TestClient_GetSeeds(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %s", req.Model)
		}
		w.Write([]byte(completionBody(wellFormedContent)))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		Endpoint: server.URL,
		Model:    "gpt-4o",
		APIKey:   "test-key",
	}, zap.NewNop().Sugar())

	seeds, err := c.GetSeeds(context.Background(), testClientRule(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(seeds))
	}
	if !seeds[0].Positive || seeds[1].Positive {
		t.Error("expected one positive then one negative seed")
	}
	if seeds[0].Event["eventName"] != "DeleteTrail" {
		t.Errorf("unexpected positive event: %v", seeds[0].Event)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}

// TestClient_RetriesTransientFailures verifies 5xx responses are retried
// and a later success wins.
func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody(wellFormedContent)))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		Endpoint:   server.URL,
		Model:      "gpt-4o",
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	}, zap.NewNop().Sugar())

	seeds, err := c.GetSeeds(context.Background(), testClientRule(), 1)
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if len(seeds) != 2 {
		t.Errorf("expected 2 seeds, got %d", len(seeds))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

// TestClient_PermanentFailureNotRetried verifies a 4xx response fails
// immediately.
func TestClient_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		Endpoint:   server.URL,
		Model:      "gpt-4o",
		MaxRetries: 5,
	}, zap.NewNop().Sugar())

	_, err := c.GetSeeds(context.Background(), testClientRule(), 1)
	if err == nil {
		t.Fatal("expected error for unauthorized response")
	}
	if IsRetryable(err) {
		t.Error("401 must be a permanent error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls.Load())
	}
}

// TestParseSeedSections covers the sectioned response format, including
// markdown fences and malformed payloads.
func TestParseSeedSections(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		positives int
		negatives int
	}{
		{
			name:      "plain sections",
			content:   wellFormedContent,
			positives: 1,
			negatives: 1,
		},
		{
			name:      "fenced sections",
			content:   "POSITIVE:\n```json\n[{\"a\": 1}, {\"a\": 2}]\n```\nNEGATIVE:\n```json\n[{\"a\": 3}]\n```",
			positives: 2,
			negatives: 1,
		},
		{
			name:    "missing negative section",
			content: "POSITIVE:\n[{\"a\": 1}]",
			wantErr: true,
		},
		{
			name:    "sections out of order",
			content: "NEGATIVE:\n[{\"a\": 1}]\nPOSITIVE:\n[{\"a\": 2}]",
			wantErr: true,
		},
		{
			name:    "invalid json",
			content: "POSITIVE:\n[{not json}]\nNEGATIVE:\n[]",
			wantErr: true,
		},
		{
			name:    "empty arrays",
			content: "POSITIVE:\n[]\nNEGATIVE:\n[]",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seeds, err := parseSeedSections(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected parse error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var pos, neg int
			for _, s := range seeds {
				if s.Positive {
					pos++
				} else {
					neg++
				}
			}
			if pos != tc.positives || neg != tc.negatives {
				t.Errorf("expected %d/%d seeds, got %d/%d", tc.positives, tc.negatives, pos, neg)
			}
		})
	}
}

// TestStaticSource verifies the offline construction yields both labels
// with satisfying and violating values.
func TestStaticSource(t *testing.T) {
	rule := &core.Rule{
		ID:        "rule-2",
		Title:     "static fixture",
		Level:     "low",
		Condition: "selection",
		Selections: map[string]core.Selection{
			"selection": {Entries: []core.FieldMap{{
				"eventName":    "CreateTrail",
				"cmd|contains": "trail",
			}}},
		},
	}

	seeds, err := NewStaticSource().GetSeeds(context.Background(), rule, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var pos, neg int
	for _, s := range seeds {
		if s.Positive {
			pos++
			if s.Event["eventName"] != "CreateTrail" {
				t.Errorf("positive seed must satisfy equals constraint: %v", s.Event)
			}
		} else {
			neg++
		}
	}
	if pos != 2 || neg != 2 {
		t.Errorf("expected 2 positive and 2 negative seeds, got %d/%d", pos, neg)
	}
}

// TestStaticSource_UnconstructibleRule verifies regex-only rules report a
// seed error instead of fabricating events.
func TestStaticSource_UnconstructibleRule(t *testing.T) {
	rule := &core.Rule{
		ID:        "rule-3",
		Title:     "regex only",
		Level:     "low",
		Condition: "selection",
		Selections: map[string]core.Selection{
			"selection": {Entries: []core.FieldMap{{"user|re": "^adm[0-9]+$"}}},
		},
	}

	_, err := NewStaticSource().GetSeeds(context.Background(), rule, 1)
	if err == nil {
		t.Fatal("expected error for unconstructible rule")
	}
}
