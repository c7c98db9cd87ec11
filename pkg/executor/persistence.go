package executor

import (
	"context"
	"time"
)

// ConversationRecorder captures prompt/response pairs for audit and cost
// tracking.
type ConversationRecorder interface {
	RecordConversation(ctx context.Context, rec ConversationRecord) error
}

// ConversationRecord describes one oracle call.
type ConversationRecord struct {
	ModelID          string
	PromptDigest     string
	Prompt           string
	Response         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Timestamp        time.Time
}

type noopConversationRecorder struct{}

func (noopConversationRecorder) RecordConversation(context.Context, ConversationRecord) error {
	return nil
}

// OracleOption customises LLMOracle construction.
type OracleOption func(*LLMOracle)

// WithConversationRecorder injects a recorder used to persist prompt/response pairs.
func WithConversationRecorder(recorder ConversationRecorder) OracleOption {
	return func(o *LLMOracle) {
		if recorder == nil {
			o.conversations = noopConversationRecorder{}
			return
		}
		o.conversations = recorder
	}
}

// WithClock overrides the time source stamped on proposals.
func WithClock(now func() time.Time) OracleOption {
	return func(o *LLMOracle) {
		if now != nil {
			o.now = now
		}
	}
}
