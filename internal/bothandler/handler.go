// Package bothandler routes Telegram updates to the places, weather
// and vision services.
package bothandler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/pawpoint/pawpoint/internal/interfaces"
	"github.com/pawpoint/pawpoint/internal/middleware"
	"github.com/pawpoint/pawpoint/internal/places"
	"github.com/pawpoint/pawpoint/internal/telemetry"
	"github.com/pawpoint/pawpoint/internal/vision"
	"github.com/pawpoint/pawpoint/internal/weather"
)

// Canned replies, mirroring the personality users already know.
var greetingReplies = map[string]string{
	"hello": "我很好",
	"hi":    "您哪位",
	"你好":    "你好呀！傳張寵物照片給我看看？",
}

const (
	fallbackReply      = "我聽不懂你在說什麼～試試傳一張寵物照片給我！🐶🐱"
	visionErrorReply   = "AI 辨識發生錯誤，請稍後再試。"
	noStationReply     = "無此站"
	weatherErrorReply  = "無法查詢該地點氣象"
	noPlacesReply      = "這附近找不到符合的地點 🐾 換個位置再試試？"
	needLocationReply  = "請先分享你的位置 📍"
	searchFailureReply = "查詢附近地點時發生錯誤，請稍後再試。"

	callbackVeterinary = "nearby_veterinary"
	callbackFood       = "nearby_food"
	callbackWeather    = "nearby_weather"
)

type Handler struct {
	bot                 *bot.Bot
	places              interfaces.PlacesServiceInterface
	weather             interfaces.WeatherServiceInterface
	vision              interfaces.VisionAnalyzerInterface
	stateManager        *StateManager
	loggingMiddleware   *middleware.BotLoggingMiddleware
	rateLimitMiddleware *middleware.RateLimitMiddleware
	errorHandler        *middleware.ErrorHandlerMiddleware
	httpClient          *http.Client

	// Search shape used for every chat-initiated lookup.
	searchRadiusM int
	searchTopN    int
}

func NewHandler(
	b *bot.Bot,
	placesService interfaces.PlacesServiceInterface,
	weatherService interfaces.WeatherServiceInterface,
	visionAnalyzer interfaces.VisionAnalyzerInterface,
) *Handler {
	stateManager := NewStateManager(30 * time.Minute)
	stateManager.StartCleanupRoutine(10 * time.Minute)

	return &Handler{
		bot:                 b,
		places:              placesService,
		weather:             weatherService,
		vision:              visionAnalyzer,
		stateManager:        stateManager,
		loggingMiddleware:   middleware.NewBotLoggingMiddleware(),
		rateLimitMiddleware: middleware.NewRateLimitMiddleware(10, time.Minute),
		errorHandler:        middleware.NewErrorHandlerMiddleware(middleware.NewStructuredLogger()),
		httpClient:          &http.Client{Timeout: 30 * time.Second},
		searchRadiusM:       places.DefaultRadiusM,
		searchTopN:          5,
	}
}

// HandleWebhook accepts a Telegram update POSTed by the webhook.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := telemetry.WithCorrelationID(c.Request.Context(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx)

	var update models.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		logger.WithError(err).Error("Failed to parse webhook JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	logger.Debug("Processing webhook update")
	h.HandleUpdate(ctx, h.bot, &update)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleUpdate dispatches one update through the middleware chain.
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.chainMiddleware(h.processUpdate)(ctx, b, update)
}

// RegisterHandlers registers bot handlers for long-polling mode.
func (h *Handler) RegisterHandlers() {
	handler := h.chainMiddleware(h.processUpdate)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, handler)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handler)
}

// chainMiddleware applies all middleware to a handler function
func (h *Handler) chainMiddleware(handler bot.HandlerFunc) bot.HandlerFunc {
	wrapped := handler
	wrapped = h.errorHandler.Middleware(wrapped)
	wrapped = h.rateLimitMiddleware.Middleware(wrapped)
	wrapped = h.loggingMiddleware.Middleware(wrapped)
	return wrapped
}

func (h *Handler) processUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"chat_id": chatID,
		"service": "bot_handler",
	})

	switch {
	case message.Location != nil:
		h.handleLocation(ctx, chatID, message.Location)
	case len(message.Photo) > 0:
		h.handlePhoto(ctx, chatID, message.Photo)
	case h.isCommand(message.Text):
		h.handleCommand(ctx, chatID, message.Text)
	case message.Text != "":
		h.handleText(ctx, chatID, message.Text)
	default:
		logger.Debug("Ignoring unsupported message type")
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, text string) {
	command, args := h.extractCommand(text)

	switch command {
	case "start":
		h.sendMessage(ctx, chatID,
			"汪喵您好！我是 PawPoint 🐾\n\n"+
				"傳給我：\n"+
				"📍 位置 — 找附近的獸醫或寵物友善餐廳\n"+
				"📷 寵物照片 — AI 幫你認識毛小孩\n"+
				"🏙 城市名稱 — 查即時天氣\n\n"+
				"輸入 /help 看完整指令。")
	case "help":
		h.sendMessage(ctx, chatID,
			"🐾 PawPoint 指令：\n\n"+
				"/vets - 找附近的獸醫院\n"+
				"/food - 找附近的寵物友善餐廳\n"+
				"/weather 城市 - 查即時天氣\n"+
				"/help - 顯示這份說明\n\n"+
				"也可以直接分享位置或傳寵物照片給我！")
	case "vets":
		h.runNearbySearch(ctx, chatID, places.CategoryVeterinary)
	case "food":
		h.runNearbySearch(ctx, chatID, places.CategoryPetFriendlyFood)
	case "weather":
		if strings.TrimSpace(args) == "" {
			h.sendMessage(ctx, chatID, "要查哪裡的天氣？例如：/weather 臺北")
			return
		}
		h.replyWeatherByName(ctx, chatID, args)
	default:
		h.sendMessage(ctx, chatID, "我不認識這個指令，輸入 /help 看看我會什麼。")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) {
	if reply, ok := greetingReplies[strings.ToLower(strings.TrimSpace(text))]; ok {
		h.sendMessage(ctx, chatID, reply)
		return
	}

	// Any other text is treated as a possible place name for a weather
	// lookup before giving up.
	if h.weather != nil && h.weather.Enabled() {
		obs, err := h.weather.LookupByName(ctx, text)
		if err == nil && obs != nil {
			h.sendMessage(ctx, chatID, weather.FormatReport(obs))
			return
		}
	}

	h.sendMessage(ctx, chatID, fallbackReply)
}

// handleLocation stores the shared location and asks what to look for.
func (h *Handler) handleLocation(ctx context.Context, chatID int64, location *models.Location) {
	point := places.GeoPoint{Lat: location.Latitude, Lon: location.Longitude}
	h.stateManager.SetPendingLocation(chatID, point)

	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"chat_id": chatID,
		"service": "bot_handler",
	}).Info("Location received")

	keyboard := models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🏥 附近獸醫", CallbackData: callbackVeterinary},
				{Text: "🍽 寵物友善餐廳", CallbackData: callbackFood},
			},
			{
				{Text: "☁️ 這裡的天氣", CallbackData: callbackWeather},
			},
		},
	}
	h.sendMessageWithKeyboard(ctx, chatID, "收到位置！想找什麼呢？", keyboard)
}

func (h *Handler) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"callback_data": callback.Data,
		"service":       "bot_handler",
	})

	if callback.Message.Message == nil {
		logger.Warn("Callback query message is nil or inaccessible")
		return
	}
	chatID := callback.Message.Message.Chat.ID

	if _, err := h.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
	}); err != nil {
		logger.WithError(err).Error("Failed to answer callback query")
	}

	switch callback.Data {
	case callbackVeterinary:
		h.runNearbySearch(ctx, chatID, places.CategoryVeterinary)
	case callbackFood:
		h.runNearbySearch(ctx, chatID, places.CategoryPetFriendlyFood)
	case callbackWeather:
		h.replyWeatherByLocation(ctx, chatID)
	default:
		h.sendMessage(ctx, chatID, "我不認識這個選項，再試一次？")
	}
}

// runNearbySearch resolves the chat's stored location and runs one
// places search against it.
func (h *Handler) runNearbySearch(ctx context.Context, chatID int64, category places.Category) {
	origin, ok := h.stateManager.PendingLocation(chatID)
	if !ok {
		h.requestLocation(ctx, chatID)
		return
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"chat_id":  chatID,
		"category": string(category),
		"service":  "bot_handler",
	})

	var (
		records []places.Result
		err     error
		title   string
	)
	switch category {
	case places.CategoryVeterinary:
		title = "🏥 附近的獸醫院："
		records, err = h.places.SearchNearbyVeterinary(ctx, origin.Lat, origin.Lon, h.searchRadiusM, h.searchTopN)
	default:
		title = "🍽 附近的寵物友善餐廳："
		records, err = h.places.SearchNearbyPetFriendlyFood(ctx, origin.Lat, origin.Lon, h.searchRadiusM, h.searchTopN, true)
	}
	if err != nil {
		logger.WithError(err).Error("Nearby search failed")
		h.sendMessage(ctx, chatID, searchFailureReply)
		return
	}

	logger.WithField("results", len(records)).Info("Nearby search answered")
	h.sendMessage(ctx, chatID, formatPlacesReply(title, records))
}

// formatPlacesReply renders search results as a numbered chat reply.
func formatPlacesReply(title string, records []places.Result) string {
	if len(records) == 0 {
		return noPlacesReply
	}

	var sb strings.Builder
	sb.WriteString(title)
	for i, record := range records {
		name := "（未命名）"
		if record.Name != nil {
			name = *record.Name
		}
		fmt.Fprintf(&sb, "\n\n%d. %s（%dm）", i+1, name, record.DistanceM)
		if record.Address != nil {
			fmt.Fprintf(&sb, "\n   📍 %s", *record.Address)
		}
	}
	return sb.String()
}

func (h *Handler) replyWeatherByName(ctx context.Context, chatID int64, query string) {
	if h.weather == nil || !h.weather.Enabled() {
		h.sendMessage(ctx, chatID, weatherErrorReply)
		return
	}

	obs, err := h.weather.LookupByName(ctx, query)
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithError(err).Error("Weather lookup failed")
		h.sendMessage(ctx, chatID, weatherErrorReply)
		return
	}
	if obs == nil {
		h.sendMessage(ctx, chatID, noStationReply)
		return
	}
	h.sendMessage(ctx, chatID, weather.FormatReport(obs))
}

func (h *Handler) replyWeatherByLocation(ctx context.Context, chatID int64) {
	origin, ok := h.stateManager.PendingLocation(chatID)
	if !ok {
		h.requestLocation(ctx, chatID)
		return
	}
	if h.weather == nil || !h.weather.Enabled() {
		h.sendMessage(ctx, chatID, weatherErrorReply)
		return
	}

	obs, err := h.weather.Nearest(ctx, origin.Lat, origin.Lon)
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithError(err).Error("Nearest station lookup failed")
		h.sendMessage(ctx, chatID, weatherErrorReply)
		return
	}
	if obs == nil {
		h.sendMessage(ctx, chatID, noStationReply)
		return
	}
	h.sendMessage(ctx, chatID, weather.FormatReport(obs))
}

// handlePhoto downloads the largest photo size and runs the pet
// analysis on it.
func (h *Handler) handlePhoto(ctx context.Context, chatID int64, sizes []models.PhotoSize) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"chat_id": chatID,
		"service": "bot_handler",
	})

	if h.vision == nil || !h.vision.Enabled() {
		h.sendMessage(ctx, chatID, visionErrorReply)
		return
	}

	// Telegram orders sizes smallest first.
	fileID := sizes[len(sizes)-1].FileID

	imageData, err := h.downloadFile(ctx, fileID)
	if err != nil {
		logger.WithError(err).Error("Failed to download photo")
		h.sendMessage(ctx, chatID, visionErrorReply)
		return
	}

	analysis, err := h.vision.AnalyzePhoto(ctx, imageData, "image/jpeg")
	if err != nil {
		logger.WithError(err).Error("Photo analysis failed")
		h.sendMessage(ctx, chatID, visionErrorReply)
		return
	}

	logger.WithField("is_pet", analysis.IsPet).Info("Photo analyzed")
	h.sendMessage(ctx, chatID, vision.FormatReply(analysis))
}

func (h *Handler) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.bot.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected download status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// requestLocation asks the user to share a location via the reply
// keyboard shortcut.
func (h *Handler) requestLocation(ctx context.Context, chatID int64) {
	keyboard := models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{
				{Text: "📍 分享我的位置", RequestLocation: true},
			},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}

	_, err := h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        needLocationReply,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithField("chat_id", chatID).
			WithError(err).Error("Failed to request location")
	}
}

// extractCommand splits "/cmd@bot args" into the command name and its
// arguments.
func (h *Handler) extractCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", ""
	}
	command := strings.TrimPrefix(parts[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.Join(parts[1:], " ")
}

// isCommand checks if a message is a command
func (h *Handler) isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	_, err := h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"chat_id":   chatID,
			"operation": "send_message",
			"service":   "bot_handler",
		}).WithError(err).Error("Failed to send message")
	}
}

func (h *Handler) sendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard models.InlineKeyboardMarkup) {
	_, err := h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"chat_id":   chatID,
			"operation": "send_message_with_keyboard",
			"service":   "bot_handler",
		}).WithError(err).Error("Failed to send message with keyboard")
	}
}
