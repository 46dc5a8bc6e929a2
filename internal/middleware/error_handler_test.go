package middleware

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pawpoint/pawpoint/internal/errors"
)

// MockStructuredLogger is a mock implementation of Logger interface
type MockStructuredLogger struct {
	mock.Mock
}

func (m *MockStructuredLogger) LogInfo(correlationID, message string, metadata map[string]interface{}, update *models.Update) {
	m.Called(correlationID, message, metadata, update)
}

func (m *MockStructuredLogger) LogWarning(correlationID, message string, metadata map[string]interface{}, update *models.Update) {
	m.Called(correlationID, message, metadata, update)
}

func (m *MockStructuredLogger) LogError(correlationID, message string, stackTrace *string, update *models.Update) {
	m.Called(correlationID, message, stackTrace, update)
}

func TestNewErrorHandlerMiddleware(t *testing.T) {
	mockLogger := &MockStructuredLogger{}

	mw := NewErrorHandlerMiddleware(mockLogger)

	assert.NotNil(t, mw)
	assert.Equal(t, mockLogger, mw.logger)
}

func TestGetUserFriendlyMessage(t *testing.T) {
	mw := NewErrorHandlerMiddleware(&MockStructuredLogger{})

	tests := []struct {
		name     string
		err      *errors.AppError
		expected string
	}{
		{
			name:     "ValidationError",
			err:      errors.NewInvalidModeError("dog_park"),
			expected: "❌ Invalid input: mode must be 'veterinary' or 'pet_friendly_food'",
		},
		{
			name:     "RateLimitError",
			err:      errors.NewRateLimitError(10, "1m"),
			expected: "⏰ You're sending requests too quickly. Please wait a moment and try again.",
		},
		{
			name:     "TransportError",
			err:      errors.NewTransportError(6, fmt.Errorf("status 503")),
			expected: "🌐 External service is temporarily unavailable. Please try again later.",
		},
		{
			name:     "TimeoutError",
			err:      errors.NewTimeoutError("overpass_query", 45*time.Second),
			expected: "⏱️ The request timed out. Please try again.",
		},
		{
			name:     "DatabaseError",
			err:      errors.NewDatabaseError("record_search", stderrors.New("connection reset")),
			expected: "💾 Database error occurred. Please try again later.",
		},
		{
			name:     "InternalError",
			err:      errors.NewInternalError("boom", nil),
			expected: "❌ Something went wrong. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mw.getUserFriendlyMessage(tt.err))
		})
	}
}

func TestGetChatID(t *testing.T) {
	mw := NewErrorHandlerMiddleware(&MockStructuredLogger{})

	update := &models.Update{
		Message: &models.Message{
			Chat: models.Chat{ID: 123},
		},
	}
	assert.Equal(t, int64(123), mw.getChatID(update))

	update = &models.Update{
		CallbackQuery: &models.CallbackQuery{
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{Chat: models.Chat{ID: 456}},
			},
		},
	}
	assert.Equal(t, int64(456), mw.getChatID(update))

	assert.Zero(t, mw.getChatID(&models.Update{}))
}

func TestHandleErrorWrapsUnknownErrors(t *testing.T) {
	mw := NewErrorHandlerMiddleware(&MockStructuredLogger{})

	// nil bot and no chat ID: only the classification path runs.
	mw.HandleError(context.Background(), nil, &models.Update{}, stderrors.New("plain error"))
}

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(2, time.Hour)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

func TestRateLimiterRefill(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)

	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	time.Sleep(25 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestRateLimitMiddlewarePerUser(t *testing.T) {
	mw := NewRateLimitMiddleware(1, time.Hour)

	first := mw.getLimiter(1)
	second := mw.getLimiter(2)
	assert.NotSame(t, first, second)
	assert.Same(t, first, mw.getLimiter(1))

	assert.True(t, first.Allow())
	assert.False(t, first.Allow())
	assert.True(t, second.Allow())
}
