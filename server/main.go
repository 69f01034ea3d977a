package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/climatecue/climatecue-api/billing"
	"github.com/climatecue/climatecue-api/database"
	"github.com/climatecue/climatecue-api/handlers"
	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/climatecue/climatecue-api/routes"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Error closing database connection: %v", closeErr)
		}
	}()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)

	stripeKey := os.Getenv("STRIPE_KEY")
	if stripeKey == "" {
		log.Fatal("STRIPE_KEY is required")
	}
	stripe.Key = stripeKey

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("STRIPE_WEBHOOK_SECRET is required")
	}

	priceID := os.Getenv("STRIPE_PRICE_ID")
	if priceID == "" {
		log.Fatal("STRIPE_PRICE_ID is required")
	}

	openWeatherKey := os.Getenv("OPENWEATHER_API_KEY")
	if openWeatherKey == "" {
		log.Fatal("OPENWEATHER_API_KEY is required")
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	PORT := os.Getenv("PORT")
	if PORT == "" {
		PORT = "8080"
	}

	userHandler := &handlers.UserHandler{
		DB:          db,
		RedisClient: redisClient,
	}
	stripeHandler := &handlers.Stripe{
		Db:          db,
		Reconciler:  billing.NewReconciler(&billing.PostgresUserStore{DB: db}, webhookSecret),
		PriceID:     priceID,
		FrontendURL: frontendURL,
	}
	weatherHandler := handlers.NewWeatherHandler(db, redisClient, openWeatherKey)

	mux := http.NewServeMux()
	routes.RegisterUserRoutes(mux, userHandler, redisClient)
	routes.StripeRoutes(mux, stripeHandler, redisClient)
	routes.WeatherRoutes(mux, weatherHandler, redisClient)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	api := middleware.CORS(
		middleware.SetCommonHeaders(
			middleware.GlobalRateLimiter(redisClient)(mux),
		),
	)

	// Stripe needs the raw body and must not be subject to CORS or the IP
	// rate limiter, so the webhook mounts outside the api chain.
	root := http.NewServeMux()
	root.HandleFunc("POST /webhook", stripeHandler.HandleWebhook)
	root.Handle("/", api)

	fmt.Printf("server is running on http://localhost:%s\n", PORT)

	log.Fatal(http.ListenAndServe(":"+PORT, root))
}
