package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shannn1/echolab-final/cache"
	"github.com/shannn1/echolab-final/config"
	"github.com/shannn1/echolab-final/core/auth"
	"github.com/shannn1/echolab-final/core/generate"
	"github.com/shannn1/echolab-final/core/relay"
	"github.com/shannn1/echolab-final/db"
	"github.com/shannn1/echolab-final/logger"
	"github.com/shannn1/echolab-final/model"
	"github.com/shannn1/echolab-final/repository"
	"github.com/shannn1/echolab-final/storage"

	"github.com/gorilla/mux"
)

// Start initializes every dependency and runs the HTTP server until an
// interrupt arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/echolab.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	server := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		ReadTimeout: 30 * time.Second,
		// Generation proxying can hold a response open for two minutes.
		WriteTimeout: cfg.GenerateTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	store, err := storage.NewStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureBucket(ctx); err != nil {
		cancel()
		logger.Fatal("Failed to ensure MinIO bucket", logger.ErrorField(err))
	}
	cancel()

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Music{}); err != nil {
		logger.Fatal("Failed to migrate music schema", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	ensureDirExists(cfg.UploadDir)

	userRepo := repository.NewMySQLUserRepository(db.DB)
	musicRepo := repository.NewGormMusicRepository(db.GormDB)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret)
	presence := cache.NewRoomPresence()

	provider := generate.NewClient(generate.ClientConfig{
		BaseURL: cfg.StabilityAPIURL,
		APIKey:  cfg.StabilityAPIKey,
		Timeout: cfg.GenerateTimeout,
	})
	gateway := generate.NewGateway(provider, store, cfg.GeneratedPrefix)

	hub := relay.NewHub(presence)
	go hub.Run()
	defer hub.Stop()

	apiHandler := NewAPIHandler(userRepo, musicRepo, gateway, store, hub, presence, issuer, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", apiHandler.AuthMiddleware(apiHandler.MeHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/me", apiHandler.AuthMiddleware(apiHandler.UpdateProfileHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/auth/favorite", apiHandler.AuthMiddleware(apiHandler.FavoriteHandler)).Methods(http.MethodPatch)

	// Generation; auth is optional and handled inside
	router.HandleFunc("/api/music/generate", apiHandler.GenerateMusicHandler).Methods(http.MethodPost)

	// Music catalog
	router.HandleFunc("/api/music", apiHandler.AuthMiddleware(apiHandler.CreateMusicHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/music/library", apiHandler.AuthMiddleware(apiHandler.LibraryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/music/public", apiHandler.PublicHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/music/plaza", apiHandler.PlazaHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/music/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateMusicHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/music/{id}/share", apiHandler.AuthMiddleware(apiHandler.ShareMusicHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/music/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteMusicHandler)).Methods(http.MethodDelete)

	// Rooms
	router.HandleFunc("/api/rooms", apiHandler.AuthMiddleware(apiHandler.CreateRoomHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}", apiHandler.RoomInfoHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/rooms", apiHandler.RoomWebSocketHandler)

	// Generated clips proxied out of MinIO.
	router.PathPrefix("/generated/").HandlerFunc(apiHandler.ServeGeneratedHandler)

	// Uploaded samples are served straight off the local disk.
	uploadsFileServer := http.FileServer(http.Dir(cfg.UploadDir))
	router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", uploadsFileServer))

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// corsMiddleware allows the browser client to talk to the API from any
// origin and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("Failed to create directory", logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("Failed to check directory", logger.String("path", path), logger.ErrorField(err))
	}
}
