package bothandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawpoint/pawpoint/internal/middleware"
	"github.com/pawpoint/pawpoint/internal/places"
	"github.com/pawpoint/pawpoint/internal/vision"
	"github.com/pawpoint/pawpoint/internal/weather"
)

// botRecorder captures requests the handler makes against the Telegram
// API and serves canned responses.
type botRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *botRecorder) record(body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
}

func (r *botRecorder) sentText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.bodies, "\n---\n")
}

func newTestBot(t *testing.T) (*bot.Bot, *botRecorder) {
	t.Helper()
	recorder := &botRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/file/"):
			w.Write([]byte("jpeg-bytes"))
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"photos/p.jpg"}}`))
		case strings.HasSuffix(r.URL.Path, "/answerCallbackQuery"):
			w.Write([]byte(`{"ok":true,"result":true}`))
		default:
			var buf bytes.Buffer
			buf.ReadFrom(r.Body)
			recorder.record(buf.String())
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":1}}}`))
		}
	}))
	t.Cleanup(srv.Close)

	b, err := bot.New("test-token", bot.WithSkipGetMe(), bot.WithServerURL(srv.URL))
	require.NoError(t, err)
	return b, recorder
}

// fakePlaces records search calls and returns a fixed result set.
type fakePlaces struct {
	mu      sync.Mutex
	calls   []string
	lastLat float64
	lastLon float64
	records []places.Result
	err     error
}

func (f *fakePlaces) remember(mode string, lat, lon float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mode)
	f.lastLat, f.lastLon = lat, lon
}

func (f *fakePlaces) SearchNearbyVeterinary(ctx context.Context, lat, lon float64, radiusM, topN int) ([]places.Result, error) {
	f.remember("veterinary", lat, lon)
	return f.records, f.err
}

func (f *fakePlaces) SearchNearbyPetFriendlyFood(ctx context.Context, lat, lon float64, radiusM, topN int, strict bool) ([]places.Result, error) {
	f.remember("pet_friendly_food", lat, lon)
	return f.records, f.err
}

func (f *fakePlaces) SearchNearby(ctx context.Context, lat, lon float64, radiusM, topN int, mode string) ([]places.Result, error) {
	f.remember(mode, lat, lon)
	return f.records, f.err
}

type fakeWeather struct {
	enabled bool
	byName  *weather.Observation
	nearest *weather.Observation
	err     error
}

func (f *fakeWeather) Enabled() bool { return f.enabled }

func (f *fakeWeather) LookupByName(ctx context.Context, query string) (*weather.Observation, error) {
	return f.byName, f.err
}

func (f *fakeWeather) Nearest(ctx context.Context, lat, lon float64) (*weather.Observation, error) {
	return f.nearest, f.err
}

type fakeVision struct {
	enabled   bool
	analysis  *vision.Analysis
	err       error
	gotImage  []byte
	gotCalled bool
}

func (f *fakeVision) Enabled() bool { return f.enabled }

func (f *fakeVision) AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) (*vision.Analysis, error) {
	f.gotCalled = true
	f.gotImage = imageData
	return f.analysis, f.err
}

func newTestHandler(t *testing.T, placesSvc *fakePlaces, weatherSvc *fakeWeather, visionSvc *fakeVision) (*Handler, *botRecorder) {
	t.Helper()
	b, recorder := newTestBot(t)

	h := &Handler{
		bot:                 b,
		places:              placesSvc,
		weather:             weatherSvc,
		vision:              visionSvc,
		stateManager:        NewStateManager(30 * time.Minute),
		loggingMiddleware:   middleware.NewBotLoggingMiddleware(),
		rateLimitMiddleware: middleware.NewRateLimitMiddleware(100, time.Minute),
		errorHandler:        middleware.NewErrorHandlerMiddleware(middleware.NewStructuredLogger()),
		httpClient:          &http.Client{Timeout: 5 * time.Second},
		searchRadiusM:       places.DefaultRadiusM,
		searchTopN:          5,
	}
	return h, recorder
}

func textUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: chatID},
			Chat: models.Chat{ID: chatID},
			Text: text,
		},
	}
}

func locationUpdate(chatID int64, lat, lon float64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From:     &models.User{ID: chatID},
			Chat:     models.Chat{ID: chatID},
			Location: &models.Location{Latitude: lat, Longitude: lon},
		},
	}
}

func callbackUpdate(chatID int64, data string) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb1",
			From: models.User{ID: chatID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{Chat: models.Chat{ID: chatID}},
			},
		},
	}
}

func TestExtractCommand(t *testing.T) {
	h := &Handler{}

	tests := []struct {
		name         string
		text         string
		expectedCmd  string
		expectedArgs string
	}{
		{"Simple command", "/start", "start", ""},
		{"Command with args", "/weather 臺北 市區", "weather", "臺北 市區"},
		{"Command with bot username", "/start@pawpoint_bot", "start", ""},
		{"Uppercase normalized", "/HELP", "help", ""},
		{"Empty command", "/", "", ""},
		{"No command", "hello", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := h.extractCommand(tt.text)
			assert.Equal(t, tt.expectedCmd, cmd)
			assert.Equal(t, tt.expectedArgs, args)
		})
	}
}

func TestIsCommand(t *testing.T) {
	h := &Handler{}

	assert.True(t, h.isCommand("/start"))
	assert.True(t, h.isCommand("/help me"))
	assert.False(t, h.isCommand("hello"))
	assert.False(t, h.isCommand(""))
}

func TestFormatPlacesReply(t *testing.T) {
	assert.Equal(t, noPlacesReply, formatPlacesReply("🏥 附近的獸醫院：", nil))

	name := "Happy Paws"
	addr := "5 Main St, Taipei"
	reply := formatPlacesReply("🏥 附近的獸醫院：", []places.Result{
		{Name: &name, Address: &addr, DistanceM: 320},
		{DistanceM: 90},
	})
	assert.Contains(t, reply, "1. Happy Paws（320m）")
	assert.Contains(t, reply, "📍 5 Main St, Taipei")
	assert.Contains(t, reply, "2. （未命名）（90m）")
}

func TestHandleWebhookInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.HandleWebhook(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookGreeting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})

	body, err := json.Marshal(textUpdate(7, "hello"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.HandleWebhook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, recorder.sentText(), "我很好")
}

func TestGreetingReplies(t *testing.T) {
	tests := []struct {
		text  string
		reply string
	}{
		{"hello", "我很好"},
		{"Hi", "您哪位"},
		{"你好", "你好呀！傳張寵物照片給我看看？"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})
			h.HandleUpdate(context.Background(), h.bot, textUpdate(1, tt.text))
			assert.Contains(t, recorder.sentText(), tt.reply)
		})
	}
}

func TestUnknownTextFallsBack(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{enabled: false}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(1, "什麼都不是"))

	assert.Contains(t, recorder.sentText(), fallbackReply)
}

func TestUnknownTextTriesWeatherLookup(t *testing.T) {
	weatherSvc := &fakeWeather{
		enabled: true,
		byName:  &weather.Observation{StationName: "臺北", Weather: "多雲", TemperatureC: 27.3},
	}
	h, recorder := newTestHandler(t, &fakePlaces{}, weatherSvc, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(1, "臺北"))

	assert.Contains(t, recorder.sentText(), "27.3°C")
}

func TestLocationOffersCategories(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, locationUpdate(9, 25.033, 121.5654))

	point, ok := h.stateManager.PendingLocation(9)
	require.True(t, ok)
	assert.Equal(t, 25.033, point.Lat)
	assert.Contains(t, recorder.sentText(), "想找什麼")
	assert.Contains(t, recorder.sentText(), callbackVeterinary)
}

func TestVeterinaryCallbackUsesStoredLocation(t *testing.T) {
	name := "Happy Paws"
	placesSvc := &fakePlaces{records: []places.Result{{Name: &name, DistanceM: 320}}}
	h, recorder := newTestHandler(t, placesSvc, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, locationUpdate(9, 25.033, 121.5654))
	h.HandleUpdate(context.Background(), h.bot, callbackUpdate(9, callbackVeterinary))

	assert.Equal(t, []string{"veterinary"}, placesSvc.calls)
	assert.Equal(t, 25.033, placesSvc.lastLat)
	assert.Equal(t, 121.5654, placesSvc.lastLon)
	assert.Contains(t, recorder.sentText(), "Happy Paws")
}

func TestFoodCallback(t *testing.T) {
	placesSvc := &fakePlaces{}
	h, recorder := newTestHandler(t, placesSvc, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, locationUpdate(3, 22.62, 120.30))
	h.HandleUpdate(context.Background(), h.bot, callbackUpdate(3, callbackFood))

	assert.Equal(t, []string{"pet_friendly_food"}, placesSvc.calls)
	assert.Contains(t, recorder.sentText(), noPlacesReply)
}

func TestSearchWithoutLocationAsksForIt(t *testing.T) {
	placesSvc := &fakePlaces{}
	h, recorder := newTestHandler(t, placesSvc, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(5, "/vets"))

	assert.Empty(t, placesSvc.calls)
	assert.Contains(t, recorder.sentText(), needLocationReply)
}

func TestSearchFailureReportsError(t *testing.T) {
	placesSvc := &fakePlaces{err: assert.AnError}
	h, recorder := newTestHandler(t, placesSvc, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, locationUpdate(4, 25.0, 121.5))
	h.HandleUpdate(context.Background(), h.bot, callbackUpdate(4, callbackVeterinary))

	assert.Contains(t, recorder.sentText(), searchFailureReply)
}

func TestWeatherCommand(t *testing.T) {
	weatherSvc := &fakeWeather{
		enabled: true,
		byName:  &weather.Observation{StationName: "高雄", Weather: "晴", TemperatureC: 30.1},
	}
	h, recorder := newTestHandler(t, &fakePlaces{}, weatherSvc, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(2, "/weather 高雄"))

	assert.Contains(t, recorder.sentText(), "高雄")
	assert.Contains(t, recorder.sentText(), "30.1°C")
}

func TestWeatherCommandNoArgs(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{enabled: true}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(2, "/weather"))

	assert.Contains(t, recorder.sentText(), "要查哪裡的天氣")
}

func TestWeatherCallbackNoStation(t *testing.T) {
	weatherSvc := &fakeWeather{enabled: true}
	h, recorder := newTestHandler(t, &fakePlaces{}, weatherSvc, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, locationUpdate(6, 25.0, 121.5))
	h.HandleUpdate(context.Background(), h.bot, callbackUpdate(6, callbackWeather))

	assert.Contains(t, recorder.sentText(), noStationReply)
}

func TestPhotoRunsAnalysis(t *testing.T) {
	visionSvc := &fakeVision{
		enabled:  true,
		analysis: &vision.Analysis{IsPet: true, Species: "狗", Breed: "柴犬"},
	}
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, visionSvc)

	update := &models.Update{
		Message: &models.Message{
			From:  &models.User{ID: 8},
			Chat:  models.Chat{ID: 8},
			Photo: []models.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		},
	}
	h.HandleUpdate(context.Background(), h.bot, update)

	assert.True(t, visionSvc.gotCalled)
	assert.Equal(t, []byte("jpeg-bytes"), visionSvc.gotImage)
	assert.Contains(t, recorder.sentText(), "柴犬")
}

func TestPhotoWhenVisionDisabled(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{enabled: false})

	update := &models.Update{
		Message: &models.Message{
			From:  &models.User{ID: 8},
			Chat:  models.Chat{ID: 8},
			Photo: []models.PhotoSize{{FileID: "p"}},
		},
	}
	h.HandleUpdate(context.Background(), h.bot, update)

	assert.Contains(t, recorder.sentText(), visionErrorReply)
}

func TestStartAndHelpCommands(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(1, "/start"))
	h.HandleUpdate(context.Background(), h.bot, textUpdate(1, "/help"))

	sent := recorder.sentText()
	assert.Contains(t, sent, "PawPoint")
	assert.Contains(t, sent, "/vets")
	assert.Contains(t, sent, "/food")
}

func TestUnknownCommand(t *testing.T) {
	h, recorder := newTestHandler(t, &fakePlaces{}, &fakeWeather{}, &fakeVision{})

	h.HandleUpdate(context.Background(), h.bot, textUpdate(1, "/teleport"))

	assert.Contains(t, recorder.sentText(), "/help")
}
