package store

import (
	"context"
	"testing"
)

type testMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type testSession struct {
	ID        string        `json:"id,omitempty"`
	SessionID string        `json:"sessionId"`
	Messages  []testMessage `json:"messages"`
	Status    string        `json:"status"`
}

func TestTypedAppendAndAll(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	sessions := NewTyped[testSession](s.Collection("chat-history"))

	stored, err := sessions.Append(ctx, testSession{
		SessionID: "browser-1",
		Messages:  []testMessage{{ID: "m1", Type: "user", Content: "Do you build decks?"}},
		Status:    "active",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected assigned id")
	}

	all := sessions.All(ctx)
	if len(all) != 1 || all[0].ID != stored.ID || all[0].SessionID != "browser-1" || all[0].Messages[0].Content != "Do you build decks?" {
		t.Fatalf("unexpected sessions %+v", all)
	}
}

func TestTypedAllSkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	collection := s.Collection("chat-history")
	if err := collection.WriteAll(ctx, []Record{
		{"id": "ok", "sessionId": "a", "status": "active"},
		{"id": "bad", "messages": "not-a-list"},
	}); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	all := NewTyped[testSession](collection).All(ctx)
	if len(all) != 1 || all[0].ID != "ok" {
		t.Fatalf("expected only the well-formed record, got %+v", all)
	}
}
