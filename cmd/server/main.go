package main

import (
	"log"
	"net/http"
	"os"

	"fieldops-backend/internal/database"
	"fieldops-backend/internal/handlers"
	"fieldops-backend/internal/metrics"
	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/services"
	"fieldops-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 FIELDOPS BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Load .env file
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Get database URL
	log.Println("🔍 Checking DATABASE_URL environment variable...")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: DATABASE_URL environment variable is required")
		log.Println("   Please set DATABASE_URL in your deployment variables or .env file")
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal("DATABASE_URL environment variable is required")
	}
	log.Println("✅ DATABASE_URL found")

	// Connect to database
	log.Println("🔌 Connecting to database...")
	db, err := database.Connect(dbURL)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database connection failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	defer db.Close()
	log.Println("✅ Database connection established")

	// Run migrations
	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database migrations failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Database migrations completed")

	// Seed database
	log.Println("🌱 Seeding database with initial data...")
	if err := database.SeedUsers(db); err != nil {
		log.Fatal("❌ User seeding failed: ", err)
	}
	log.Println("✅ Users seeded successfully")

	if err := database.SeedTeams(db); err != nil {
		log.Fatal("❌ Team seeding failed: ", err)
	}
	log.Println("✅ Teams seeded successfully")

	// Initialize Firebase Cloud Messaging
	// Supports both file path and base64-encoded credentials (for cloud deployments)
	var fcmService *services.FCMService
	fcmCredsBase64 := os.Getenv("FIREBASE_CREDENTIALS_BASE64")

	if fcmCredsBase64 != "" {
		fcmService, err = services.NewFCMServiceFromBase64(fcmCredsBase64)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		}
	} else {
		fcmCredentialsFile := os.Getenv("FIREBASE_CREDENTIALS_FILE")
		if fcmCredentialsFile == "" {
			fcmCredentialsFile = "./firebase-service-account.json"
		}

		fcmService, err = services.NewFCMService(fcmCredentialsFile)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from file")
		}
	}

	// Optional Redis live-position cache
	liveCache, err := services.NewLiveCacheFromEnv()
	if err != nil {
		log.Printf("⚠️  Redis live cache unavailable: %v (continuing without it)", err)
		liveCache = nil
	} else if liveCache != nil {
		defer liveCache.Close()
		log.Println("✅ Redis live-position cache connected")
	}

	// Repositories
	teamRepo := database.NewTeamRepo(db)
	locationRepo := database.NewLocationRepo(db)
	routeRepo := database.NewRouteProgressRepo(db)
	taskRepo := database.NewTaskRepo(db)
	availabilityRepo := database.NewAvailabilityRepo(db)
	auditRepo := database.NewAuditRepo(db)

	// Core services
	resolver := services.NewIdentityResolver(teamRepo)
	auditSink := services.NewAuditSink(auditRepo)
	availabilityEngine := services.NewAvailabilityEngine(taskRepo, availabilityRepo, locationRepo, resolver, auditSink)
	locationStore := services.NewLocationStore(locationRepo, resolver, availabilityEngine, auditSink)
	routeTracker := services.NewRouteProgressTracker(routeRepo, resolver, taskRepo, auditSink)
	historyFormatter := services.NewHistoryFormatter(locationStore, resolver)
	log.Println("✅ Core services wired")

	// Metrics
	reg := metrics.NewMetricsRegistry()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	wsHub.OnCountChange(func(n int) {
		reg.WebsocketClientsGauge.Set(float64(n))
	})
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics(reg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", handlers.Health(db, wsHub))

	// Prometheus metrics
	r.Method("GET", "/metrics", promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{}))

	// Authentication routes (no auth required)
	r.Post("/api/auth/login", handlers.Login(db))

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, locationStore))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)

			// Auth status endpoint
			r.Get("/auth/status", handlers.AuthStatus())

			// Location ingestion (rate limited - mobile clients report every few seconds)
			r.With(middleware.RateLimit).Post("/teams/location", handlers.UpdateTeamLocation(locationStore, wsHub, fcmService, liveCache, reg, db))

			// Location reads
			r.Get("/teams/locations", handlers.GetTeamLocations(locationStore))
			r.Get("/teams/locations/stats", handlers.GetLocationStats(locationStore))
			r.Get("/teams/{teamRef}/location", handlers.GetTeamLocation(locationStore))
			r.Get("/teams/{teamRef}/location/history", handlers.GetLocationHistory(historyFormatter))
			r.Get("/teams/{teamRef}/location/history/export", handlers.ExportLocationHistory(historyFormatter))

			// Route progress
			r.Post("/teams/route-progress", handlers.UpdateRouteProgress(routeTracker, wsHub, fcmService, reg, db))
			r.Get("/teams/{teamRef}/route-progress", handlers.GetRouteProgress(routeTracker))
			r.Post("/teams/{teamRef}/route-status", handlers.SetRouteStatus(routeTracker, wsHub))

			// Availability
			r.Get("/teams/availability", handlers.GetTeamsAvailability(availabilityEngine, teamRepo))
			r.Get("/teams/{teamRef}/availability", handlers.GetTeamAvailability(availabilityEngine))

			// FCM token registration
			r.Post("/fcm-token", handlers.RegisterFCMToken(db))
		})

		// Admin endpoints (require authentication + admin role)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)
			r.Use(middleware.RequireRole("admin"))

			r.Delete("/teams/{teamRef}/location", handlers.DeleteTeamLocation(locationStore))

			// User management
			r.Post("/users", handlers.CreateUser(db))
		})
	})

	// Get port
	log.Println("🔍 Checking PORT environment variable...")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		log.Printf("⚠️  PORT not set, using default: %s", port)
	} else {
		log.Printf("✅ PORT found: %s", port)
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", port)
	log.Println("🔌 Ready to accept requests!")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Start server
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Server failed to start")
		log.Printf("   Error: %v", err)
		log.Printf("   Port: %s", port)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
}
