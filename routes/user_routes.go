package routes

import (
	"net/http"

	"github.com/climatecue/climatecue-api/handlers"
	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/redis/go-redis/v9"
)

func RegisterUserRoutes(mux *http.ServeMux, h *handlers.UserHandler, redis *redis.Client) {
	authMw := &middleware.RedisStruct{
		RedisClient: redis,
	}

	mux.HandleFunc("POST /api/users/register", h.Register)
	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("POST /api/users/logout", h.Logout)
	mux.HandleFunc("POST /api/users/refresh-token", h.RefreshTokenVerify)

	mux.Handle("GET /api/users/me", authMw.AuthMiddleware(http.HandlerFunc(h.GetUserInfo)))
	mux.Handle("PUT /api/users/me", authMw.AuthMiddleware(http.HandlerFunc(h.UpdateUserInfo)))
	mux.Handle("PUT /api/users/password", authMw.AuthMiddleware(http.HandlerFunc(h.UpdatePassword)))

	mux.Handle("GET /api/users/favorites", authMw.AuthMiddleware(http.HandlerFunc(h.GetFavorites)))
	mux.Handle("POST /api/users/favorites", authMw.AuthMiddleware(http.HandlerFunc(h.AddFavorite)))
	mux.Handle("DELETE /api/users/favorites/{city}", authMw.AuthMiddleware(http.HandlerFunc(h.RemoveFavorite)))
}
