package app

import (
	"context"

	"sitecms/api/internal/store"
)

var chatStatuses = map[string]struct{}{
	"active":    {},
	"completed": {},
	"escalated": {},
}

func (s *Service) ListChatSessions(ctx context.Context) []store.Record {
	return sortNewestFirst(s.chats().LoadAll(ctx), "startTime")
}

// SaveChatSession appends one chat transcript. The record is stored as sent
// apart from defaults for status, tags, messages and startTime.
func (s *Service) SaveChatSession(ctx context.Context, session store.Record) (store.Record, error) {
	if session == nil {
		return nil, validationError("chat session body is required", nil)
	}
	if messages, ok := session["messages"]; ok {
		if _, isList := messages.([]any); !isList {
			return nil, validationError("messages must be a list", map[string]any{"field": "messages"})
		}
	} else {
		session["messages"] = []any{}
	}
	if status := session.String("status"); status == "" {
		session["status"] = "active"
	} else if _, ok := chatStatuses[status]; !ok {
		return nil, validationError("invalid status", map[string]any{"field": "status", "allowed": []string{"active", "completed", "escalated"}})
	}
	if _, ok := session["tags"]; !ok {
		session["tags"] = []any{}
	}
	if session.String("startTime") == "" {
		session["startTime"] = s.timestamp()
	}

	stored, err := s.chats().AppendOne(ctx, session)
	if err != nil {
		return nil, writeFailure(err)
	}
	return stored, nil
}

// markEscalated flags every chat session carrying sessionID as escalated.
func (s *Service) markEscalated(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	for _, rec := range s.chats().LoadAll(ctx) {
		if rec.String("sessionId") != sessionID && rec.ID() != sessionID {
			continue
		}
		if _, err := s.chats().UpdateOne(ctx, rec.ID(), store.Record{"status": "escalated"}); err != nil {
			s.logger.Warn("mark chat escalated", "session_id", sessionID, "error", err)
		}
	}
}
