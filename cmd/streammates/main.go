package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/config"
	"github.com/Mitahi-1810/stream-mates/internal/handlers"
	"github.com/Mitahi-1810/stream-mates/internal/identity"
	clog "github.com/Mitahi-1810/stream-mates/internal/log"
	"github.com/Mitahi-1810/stream-mates/internal/metrics"
	"github.com/Mitahi-1810/stream-mates/internal/registry"
	"github.com/Mitahi-1810/stream-mates/internal/store"
	"github.com/Mitahi-1810/stream-mates/internal/ws"
)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Environment)

	st, err := store.NewRedisStore(cfg.Redis, cfg.RoomTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to room store")
	}
	defer st.Close()
	log.Info().Msg("room store connection established")

	reg := registry.New()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))
	router.Use(metrics.GinMiddleware())

	router.GET("/health", handlers.Health)
	router.GET("/metrics", metrics.Handler())

	// Identity for mutating REST routes. Default is the source trust model:
	// whatever id the client claims. REQUIRE_AUTH swaps in token validation.
	var provider identity.Provider = identity.Claimed{}
	if cfg.RequireAuth {
		provider = identity.TokenProvider{Secret: cfg.JWTSecret}
	}

	rooms := handlers.NewRoomHandlers(st, reg)
	api := router.Group("/api")
	{
		api.POST("/auth/session", identity.SessionHandler(cfg.JWTSecret, 24*time.Hour))

		api.POST("/rooms", identity.Require(provider), rooms.CreateRoom)
		api.GET("/rooms/:code", rooms.GetRoom)
		api.POST("/rooms/:code/join", rooms.JoinRoom)
		api.POST("/rooms/:code/leave", rooms.LeaveRoom)
		api.POST("/rooms/:code/close", identity.Require(provider), rooms.CloseRoom)
	}

	router.GET("/ws", ws.NewHandler(reg, st).Serve)

	log.Info().Str("port", cfg.Port).Msg("starting StreamMates server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
