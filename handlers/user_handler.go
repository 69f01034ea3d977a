package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/climatecue/climatecue-api/models"
	"github.com/climatecue/climatecue-api/utils"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	accessTokenTTL  = 3 * time.Hour
	refreshTokenTTL = 24 * time.Hour
)

type UserHandler struct {
	DB          *sql.DB
	RedisClient *redis.Client
}

func (h *UserHandler) issueSession(w http.ResponseWriter, r *http.Request, userID string) error {
	accessJWTKey := os.Getenv("ACCESS_JWT_ACCESS_TOKEN_SECRET")

	accessToken, err := utils.CreateToken(userID, accessTokenTTL, []byte(accessJWTKey))
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	refreshJWTKey := os.Getenv("ACCESS_JWT_REFRESH_TOKEN_SECRET")

	refreshToken, err := utils.CreateToken(userID, refreshTokenTTL, []byte(refreshJWTKey))
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	redisOpCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf("refresh:%s", userID)
	if err := h.RedisClient.Set(redisOpCtx, key, refreshToken, refreshTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	utils.SetAuthCookie(w, accessToken, refreshToken)
	return nil
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var user models.User

	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		log.Printf("Error decoding request body: %v", err)
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if user.Username == "" || user.Email == "" || user.PasswordHash == "" {
		utils.RespondValidationError(w, "Missing required fields", []string{"username", "email", "password"})
		return
	}

	passwordHash, err := utils.HashPassword(user.PasswordHash)
	if err != nil {
		log.Printf("Error while hashing password: %v", err)
		utils.RespondInternal(w, err, "Could not process password")
		return
	}

	// New accounts always start unsubscribed; only the webhook reconciler and
	// the checkout path flip that flag.
	err = h.DB.QueryRow(`
		INSERT INTO users (username, email, password_hash, home_city)
		VALUES ($1, $2, $3, $4)
		RETURNING uuid
	`, user.Username, user.Email, passwordHash, user.HomeCity).Scan(&user.UUID)

	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			log.Printf("Unique violation: %v", err)
			utils.RespondError(w, http.StatusConflict, "Email or username already in use")
			return
		}
		log.Printf("Unexpected DB error: %v", err)
		utils.RespondInternal(w, err, "Unable to create account")
		return
	}

	if err := h.issueSession(w, r, user.UUID.String()); err != nil {
		log.Printf("Error creating session during register: %v", err)
		utils.RespondInternal(w, err, "Could not create session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginForm models.LoginForm
	if err := json.NewDecoder(r.Body).Decode(&loginForm); err != nil {
		log.Printf("Error decoding login request body: %v", err)
		utils.RespondError(w, http.StatusBadRequest, "Invalid login payload")
		return
	}

	if loginForm.Password == "" || (loginForm.Username == "" && loginForm.Email == "") {
		utils.RespondValidationError(w, "username/email and password are required", []string{"username_or_email", "password"})
		return
	}

	var storedUser models.User
	var query string
	var args []interface{}

	if loginForm.Username != "" {
		query = "SELECT uuid, password_hash FROM users WHERE username = $1"
		args = []interface{}{loginForm.Username}
	} else {
		query = "SELECT uuid, password_hash FROM users WHERE email = $1"
		args = []interface{}{loginForm.Email}
	}

	err := h.DB.QueryRow(query, args...).Scan(&storedUser.UUID, &storedUser.PasswordHash)

	if err == sql.ErrNoRows {
		log.Printf("Login attempt failed: User not found for username/email: %s %s", loginForm.Username, loginForm.Email)
		utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to process login")
		return
	}

	if !utils.CheckPasswordHash(loginForm.Password, storedUser.PasswordHash) {
		log.Printf("Login attempt failed: Password mismatch for user %s", storedUser.UUID)
		utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.issueSession(w, r, storedUser.UUID.String()); err != nil {
		log.Printf("Error creating session during login: %v", err)
		utils.RespondInternal(w, err, "Could not create session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.ClearAuthCookie(w)
	utils.RespondSuccess(w, http.StatusOK)
}

func (h *UserHandler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		log.Printf("Error: User ID not found in context")
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	row := h.DB.QueryRow("SELECT uuid, username, email, home_city, is_subscribed, created_at FROM users WHERE uuid = $1", userID)

	var user models.UserProfile

	err := row.Scan(
		&user.Uuid,
		&user.Username,
		&user.Email,
		&user.HomeCity,
		&user.IsSubscribed,
		&user.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("User not found for ID: %s", userID)
			utils.RespondError(w, http.StatusNotFound, "User not found")
		} else {
			log.Printf("Database error while fetching user info for ID %s: %v", userID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	utils.RespondSuccess(w, http.StatusOK, user)
}

func (h *UserHandler) RefreshTokenVerify(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
		return
	}

	refreshJWTKey := os.Getenv("ACCESS_JWT_REFRESH_TOKEN_SECRET")

	claims, err := utils.ParseToken(refreshCookie.Value, []byte(refreshJWTKey))
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
		return
	}

	if err := h.issueSession(w, r, claims.UserID); err != nil {
		log.Printf("Error rotating session for user %s: %v", claims.UserID, err)
		utils.RespondInternal(w, err, "Could not refresh session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK)
}

func (h *UserHandler) UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	var user models.UpdateUser
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if user.Email == "" || user.Username == "" {
		utils.RespondError(w, http.StatusBadRequest, "Email and username are required")
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	_, err := h.DB.Exec(
		`UPDATE users SET email = $1, username = $2, home_city = $3 WHERE uuid = $4`,
		user.Email, user.Username, user.HomeCity, userID,
	)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Unable to update user info")
		return
	}

	utils.RespondString(w, http.StatusOK, "User info updated successfully")
}

func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	err := updateUserPasswordLogic(h.DB, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondSuccess(w, http.StatusOK, "Password updated!")
}

func updateUserPasswordLogic(db *sql.DB, r *http.Request) error {
	type Body struct {
		Password           string `json:"password"`
		NewPassword        string `json:"new_password"`
		ConfirmNewPassword string `json:"confirm_new_password"`
	}

	var body Body
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid request body")
	}

	if body.NewPassword != body.ConfirmNewPassword {
		return fmt.Errorf("new password and confirmation do not match")
	}

	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		return fmt.Errorf("unauthorized")
	}

	var hashedPassword string
	err := db.QueryRow(`SELECT password_hash FROM users WHERE uuid = $1`, userID).Scan(&hashedPassword)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("user not found")
		}
		return fmt.Errorf("internal server error")
	}

	if !utils.CheckPasswordHash(body.Password, hashedPassword) {
		return fmt.Errorf("current password is incorrect")
	}

	newHashedPassword, err := utils.HashPassword(body.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password")
	}

	_, err = db.Exec(`UPDATE users SET password_hash = $1 WHERE uuid = $2`, newHashedPassword, userID)
	if err != nil {
		return fmt.Errorf("failed to update password")
	}

	return nil
}

func (h *UserHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rows, err := h.DB.Query(`SELECT city, created_at FROM favorite_cities WHERE user_uuid = $1 ORDER BY created_at`, userID)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to fetch favorite cities")
		return
	}
	defer rows.Close()

	favorites := []models.FavoriteCity{}
	for rows.Next() {
		var fav models.FavoriteCity
		if err := rows.Scan(&fav.City, &fav.AddedAt); err != nil {
			utils.RespondInternal(w, err, "Unable to read favorite cities")
			return
		}
		favorites = append(favorites, fav)
	}
	if err := rows.Err(); err != nil {
		utils.RespondInternal(w, err, "Unable to read favorite cities")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, favorites)
}

func (h *UserHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var fav models.FavoriteCity
	if err := json.NewDecoder(r.Body).Decode(&fav); err != nil || fav.City == "" {
		utils.RespondError(w, http.StatusBadRequest, "City is required")
		return
	}

	_, err := h.DB.Exec(`
		INSERT INTO favorite_cities (user_uuid, city)
		VALUES ($1, $2)
		ON CONFLICT (user_uuid, city) DO NOTHING
	`, userID, fav.City)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to save favorite city")
		return
	}

	utils.RespondString(w, http.StatusOK, "Favorite city saved")
}

func (h *UserHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	city := r.PathValue("city")
	if city == "" {
		utils.RespondError(w, http.StatusBadRequest, "City is required")
		return
	}

	res, err := h.DB.Exec(`DELETE FROM favorite_cities WHERE user_uuid = $1 AND city = $2`, userID, city)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to remove favorite city")
		return
	}

	if n, _ := res.RowsAffected(); n == 0 {
		utils.RespondError(w, http.StatusNotFound, "Favorite city not found")
		return
	}

	utils.RespondString(w, http.StatusOK, "Favorite city removed")
}
