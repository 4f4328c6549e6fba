package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Keys shared by every component that logs about users and matches.
const (
	FieldUserID         = "user_id"
	FieldOtherUserID    = "other_user_id"
	FieldConversationID = "conversation_id"
	FieldScore          = "score"
	FieldHighMatch      = "high_match"
	FieldMatchReason    = "match_reason"
	FieldAction         = "action"

	// FieldProvider and FieldModel describe the text generation backend.
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
)

// WithFields attaches fields to logger, falling back to a no-op logger when it is nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// UserFields identifies the acting user and the counterpart. Blank ids are left out,
// so either side may be omitted.
func UserFields(userID, otherUserID string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	fields = appendID(fields, FieldUserID, userID)
	return appendID(fields, FieldOtherUserID, otherUserID)
}

// ConversationFields is UserFields for an exchange with the counterpart.
func ConversationFields(otherUserID, conversationID string) []zap.Field {
	return appendID(UserFields("", otherUserID), FieldConversationID, conversationID)
}

// MatchFields describes a scored pair. The reason is only added when known.
func MatchFields(score float64, highMatch bool, reason string) []zap.Field {
	fields := []zap.Field{
		zap.Float64(FieldScore, score),
		zap.Bool(FieldHighMatch, highMatch),
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		fields = append(fields, zap.String(FieldMatchReason, reason))
	}
	return fields
}

// ProviderFields names the backend a generator talks to.
func ProviderFields(provider, model string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	fields = appendID(fields, FieldProvider, provider)
	return appendID(fields, FieldModel, model)
}

func appendID(fields []zap.Field, key, value string) []zap.Field {
	if value = strings.TrimSpace(value); value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
