package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/climatecue/climatecue-api/utils"
	"github.com/redis/go-redis/v9"
)

type contextKey string

const UserIDContextKey contextKey = "userID"

type RedisStruct struct {
	RedisClient *redis.Client
}

func (rs *RedisStruct) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("access_token")
		if err != nil {
			if err == http.ErrNoCookie {
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
				return
			}
			log.Printf("Auth failed: Error reading cookie: %v", err)
			utils.RespondError(w, http.StatusBadRequest, "Bad Request")
			return
		}

		rcookie, err := r.Cookie("refresh_token")
		if err != nil {
			if err == http.ErrNoCookie {
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
				return
			}
			log.Printf("Auth failed: Error reading cookie: %v", err)
			utils.RespondError(w, http.StatusBadRequest, "Bad Request")
			return
		}

		jwtKey := os.Getenv("ACCESS_JWT_ACCESS_TOKEN_SECRET")

		claims, err := utils.ParseToken(cookie.Value, []byte(jwtKey))
		if err != nil {
			log.Printf("Auth failed: Invalid or expired token: %v", err)
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
			return
		}

		key := fmt.Sprintf("refresh:%s", claims.UserID)

		redisOpCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		refreshTokenFromRedis, err := rs.RedisClient.Get(redisOpCtx, key).Result()
		if err != nil {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Session expired")
			return
		}

		if refreshTokenFromRedis != rcookie.Value {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
