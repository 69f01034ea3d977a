package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	UUID         uuid.UUID `db:"uuid" json:"uuid"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"password"`
	HomeCity     string    `db:"home_city" json:"home_city"`
	IsSubscribed bool      `db:"is_subscribed" json:"is_subscribed"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type LoginForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserProfile struct {
	Uuid         uuid.UUID `json:"uuid"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	HomeCity     string    `json:"home_city"`
	IsSubscribed bool      `json:"is_subscribed"`
	CreatedAt    time.Time `json:"created_at"`
}

type UpdateUser struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	HomeCity string `json:"home_city"`
}

type FavoriteCity struct {
	City    string    `json:"city"`
	AddedAt time.Time `json:"added_at"`
}
