package routes

import (
	"net/http"

	"github.com/climatecue/climatecue-api/handlers"
	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/redis/go-redis/v9"
)

func WeatherRoutes(mux *http.ServeMux, h *handlers.WeatherHandler, redis *redis.Client) {
	authMw := &middleware.RedisStruct{
		RedisClient: redis,
	}
	mux.HandleFunc("GET /api/weather/current", h.GetCurrent)
	mux.Handle("GET /api/weather/forecast", authMw.AuthMiddleware(http.HandlerFunc(h.GetForecast)))
}
