package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/pawpoint/pawpoint/internal/errors"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// ErrorHandlerMiddleware provides centralized error handling for bot operations
type ErrorHandlerMiddleware struct {
	logger Logger
}

// NewErrorHandlerMiddleware creates a new error handler middleware
func NewErrorHandlerMiddleware(logger Logger) *ErrorHandlerMiddleware {
	return &ErrorHandlerMiddleware{
		logger: logger,
	}
}

// Middleware returns the error handling middleware function
func (m *ErrorHandlerMiddleware) Middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
				correlationID := telemetry.GetCorrelationID(ctx)
				stackTrace := string(debug.Stack())

				telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
					"operation":   "error_handler_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": stackTrace,
					"service":     "middleware",
				}).Error("Panic recovered in bot handler")

				err := errors.NewInternalError(fmt.Sprintf("Panic in handler: %v", r), nil).
					WithCorrelationID(correlationID)

				m.handleError(ctx, b, update, err)
			}
		}()

		next(ctx, b, update)
	}
}

// HandleError provides a centralized way to handle errors in bot handlers
func (m *ErrorHandlerMiddleware) HandleError(ctx context.Context, b *bot.Bot, update *models.Update, err error) {
	m.handleError(ctx, b, update, err)
}

// handleError processes and responds to errors
func (m *ErrorHandlerMiddleware) handleError(ctx context.Context, b *bot.Bot, update *models.Update, err error) {
	correlationID := telemetry.GetCorrelationID(ctx)

	var appErr *errors.AppError
	if !errors.AsAppError(err, &appErr) {
		appErr = errors.NewInternalError("An unexpected error occurred", err)
	}
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(correlationID)
	}

	m.logError(ctx, appErr, update)
	m.sendErrorResponse(b, update, appErr)
}

// logError logs the error with appropriate level based on error type
func (m *ErrorHandlerMiddleware) logError(ctx context.Context, appErr *errors.AppError, update *models.Update) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "error_handler_log",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"service":    "middleware",
	})

	if update != nil {
		if update.Message != nil {
			logger = logger.WithFields(map[string]interface{}{
				"user_id":      update.Message.From.ID,
				"chat_id":      update.Message.Chat.ID,
				"message_type": "message",
			})
		} else if update.CallbackQuery != nil {
			logger = logger.WithFields(map[string]interface{}{
				"user_id":      update.CallbackQuery.From.ID,
				"message_type": "callback_query",
			})
		}
	}

	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}
	if appErr.Details != "" {
		logger = logger.WithField("details", appErr.Details)
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeRateLimit:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeTransport, errors.ErrorTypeExternal, errors.ErrorTypeTimeout:
		logger.Warn(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}

// sendErrorResponse sends an appropriate error message to the user
func (m *ErrorHandlerMiddleware) sendErrorResponse(b *bot.Bot, update *models.Update, appErr *errors.AppError) {
	chatID := m.getChatID(update)
	if chatID == 0 || b == nil {
		return
	}

	message := m.getUserFriendlyMessage(appErr)

	defer func() {
		if r := recover(); r != nil {
			// Bot not fully initialized in some test scenarios
			m.logger.LogError(appErr.CorrelationID, "Panic while sending error response to user", nil, update)
		}
	}()

	_, err := b.SendMessage(context.Background(), &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	})
	if err != nil {
		m.logger.LogError(appErr.CorrelationID, "Failed to send error response to user", nil, update)
	}
}

// getChatID extracts chat ID from update
func (m *ErrorHandlerMiddleware) getChatID(update *models.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
	}
	return 0
}

// getUserFriendlyMessage converts technical errors to user-friendly messages
func (m *ErrorHandlerMiddleware) getUserFriendlyMessage(appErr *errors.AppError) string {
	switch appErr.Type {
	case errors.ErrorTypeValidation:
		return fmt.Sprintf("❌ Invalid input: %s", appErr.Message)
	case errors.ErrorTypeRateLimit:
		return "⏰ You're sending requests too quickly. Please wait a moment and try again."
	case errors.ErrorTypeTimeout:
		return "⏱️ The request timed out. Please try again."
	case errors.ErrorTypeTransport, errors.ErrorTypeExternal:
		return "🌐 External service is temporarily unavailable. Please try again later."
	case errors.ErrorTypeDatabase:
		return "💾 Database error occurred. Please try again later."
	case errors.ErrorTypeCache:
		return "🗄️ Cache error occurred. Please try again."
	case errors.ErrorTypeTelegram:
		return "📱 Telegram API error occurred. Please try again."
	default:
		return "❌ Something went wrong. Please try again later."
	}
}

// ErrorHandler is a helper function for handlers to easily report errors
func ErrorHandler(ctx context.Context, b *bot.Bot, update *models.Update, err error) {
	if err == nil {
		return
	}

	errorHandler := NewErrorHandlerMiddleware(NewStructuredLogger())
	errorHandler.HandleError(ctx, b, update, err)
}

// WrapHandler wraps a handler function with error handling
func WrapHandler(handler func(ctx context.Context, b *bot.Bot, update *models.Update) error) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if err := handler(ctx, b, update); err != nil {
			ErrorHandler(ctx, b, update, err)
		}
	}
}
