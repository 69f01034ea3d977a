package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/climatecue/climatecue-api/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	defaultWeatherBaseURL  = "https://api.openweathermap.org/data/2.5"
	defaultWeatherCacheTTL = 10 * time.Minute

	// Forecasts beyond this many days are the paid feature.
	freeForecastDays = 5
	maxForecastDays  = 8
)

var errCityNotFound = errors.New("city not found")

// WeatherHandler proxies current weather and forecasts from OpenWeather.
// Responses are cached per city in Redis with a TTL so repeated lookups do
// not hit the external API, and outbound calls run behind a circuit breaker.
type WeatherHandler struct {
	DB       *sql.DB
	Redis    *redis.Client
	Client   *http.Client
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration

	circuit *gobreaker.CircuitBreaker
}

func NewWeatherHandler(db *sql.DB, redisClient *redis.Client, apiKey string) *WeatherHandler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &WeatherHandler{
		DB:       db,
		Redis:    redisClient,
		Client:   &http.Client{Timeout: 10 * time.Second},
		APIKey:   apiKey,
		BaseURL:  defaultWeatherBaseURL,
		CacheTTL: defaultWeatherCacheTTL,
		circuit:  cb,
	}
}

func (h *WeatherHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		utils.RespondError(w, http.StatusBadRequest, "city query parameter is required")
		return
	}

	cacheKey := fmt.Sprintf("weather:current:%s", strings.ToLower(city))
	if h.serveFromCache(r.Context(), w, cacheKey) {
		return
	}

	values := url.Values{}
	values.Set("q", city)
	values.Set("appid", h.APIKey)
	values.Set("units", "metric")

	body, err := h.fetch(r.Context(), "/weather", values)
	if err != nil {
		h.respondUpstreamError(w, city, err)
		return
	}

	h.storeInCache(r.Context(), cacheKey, body)
	writeWeatherPayload(w, body, false)
}

func (h *WeatherHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		utils.RespondError(w, http.StatusBadRequest, "city query parameter is required")
		return
	}

	days := freeForecastDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxForecastDays {
			utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxForecastDays))
			return
		}
		days = parsed
	}

	if days > freeForecastDays {
		subscribed, err := h.isSubscribed(r)
		if err != nil {
			utils.RespondInternal(w, err, "Unable to check subscription")
			return
		}
		if !subscribed {
			utils.RespondError(w, http.StatusPaymentRequired, "Extended forecast requires an active subscription")
			return
		}
	}

	cacheKey := fmt.Sprintf("weather:forecast:%s:%d", strings.ToLower(city), days)
	if h.serveFromCache(r.Context(), w, cacheKey) {
		return
	}

	values := url.Values{}
	values.Set("q", city)
	values.Set("appid", h.APIKey)
	values.Set("units", "metric")
	// OpenWeather returns 3-hour steps; 8 entries cover one day.
	values.Set("cnt", strconv.Itoa(days*8))

	body, err := h.fetch(r.Context(), "/forecast", values)
	if err != nil {
		h.respondUpstreamError(w, city, err)
		return
	}

	h.storeInCache(r.Context(), cacheKey, body)
	writeWeatherPayload(w, body, false)
}

func (h *WeatherHandler) isSubscribed(r *http.Request) (bool, error) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		return false, nil
	}

	var subscribed bool
	err := h.DB.QueryRow(`SELECT is_subscribed FROM users WHERE uuid = $1`, userID).Scan(&subscribed)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return subscribed, nil
}

func (h *WeatherHandler) serveFromCache(ctx context.Context, w http.ResponseWriter, key string) bool {
	if h.Redis == nil {
		return false
	}

	cached, err := h.Redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("weather cache read failed for %s: %v", key, err)
		}
		return false
	}

	writeWeatherPayload(w, []byte(cached), true)
	return true
}

func (h *WeatherHandler) storeInCache(ctx context.Context, key string, body []byte) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Set(ctx, key, body, h.CacheTTL).Err(); err != nil {
		log.Printf("weather cache write failed for %s: %v", key, err)
	}
}

func (h *WeatherHandler) fetch(ctx context.Context, path string, values url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s%s?%s", h.BaseURL, path, values.Encode())

	result, err := h.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, err := h.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errCityNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d from weather provider", resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

func (h *WeatherHandler) respondUpstreamError(w http.ResponseWriter, city string, err error) {
	switch {
	case errors.Is(err, errCityNotFound):
		utils.RespondError(w, http.StatusNotFound, fmt.Sprintf("No weather data for city %q", city))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Printf("weather provider circuit open: %v", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "Weather provider temporarily unavailable")
	default:
		log.Printf("weather provider fetch failed for %s: %v", city, err)
		utils.RespondError(w, http.StatusBadGateway, "Failed to fetch weather data")
	}
}

// writeWeatherPayload passes the provider JSON through untouched; the client
// owns presentation. X-Cache lets the frontend tell a cached answer apart.
func writeWeatherPayload(w http.ResponseWriter, body []byte, fromCache bool) {
	w.Header().Set("Content-Type", "application/json")
	if fromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("failed to write weather payload: %v", err)
	}
}
