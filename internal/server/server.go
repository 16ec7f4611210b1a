package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/relay"
	"whiteboard-backend/internal/storage"
)

// Server is the Fiber server wrapper.
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	hub            *relay.Hub
	presence       *presence.Table
	boardHandler   *handler.BoardHandler
	boardWSHandler *handler.BoardWSHandler
	healthHandler  *handler.HealthHandler
	jwtManager     *auth.JWTManager
}

// New creates a server instance and wires all handlers.
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Whiteboard Sync Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // incompatible with WebSocket state
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // full canvas saves can be large
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Redis canvas cache (optional)
	var redisClient *cache.RedisClient
	if cfg.Redis.Addr != "" {
		var err error
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			log.Printf("⚠️ Redis cache initialization failed: %v (canvas loads will hit the database)", err)
			redisClient = nil
		}
	} else {
		log.Println("ℹ️ Redis not configured (canvas loads will hit the database)")
	}

	// S3 thumbnail storage (optional)
	var s3Service *storage.S3Service
	if cfg.S3.BucketName != "" && cfg.S3.AccessKeyID != "" {
		var err error
		s3Service, err = storage.NewS3Service(&cfg.S3)
		if err != nil {
			log.Printf("⚠️ S3 service initialization failed: %v (thumbnails stored inline)", err)
		} else {
			log.Printf("✅ S3 service initialized (bucket: %s)", cfg.S3.BucketName)
		}
	} else {
		log.Println("ℹ️ S3 service not configured (thumbnails stored inline)")
	}

	boardStore := storage.NewBoardStore(db, redisClient, s3Service)
	hub := relay.NewHub(cfg.Sync.EnforceRelayPermissions)
	table := presence.NewTable()

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		hub:            hub,
		presence:       table,
		boardHandler:   handler.NewBoardHandler(db, boardStore),
		boardWSHandler: handler.NewBoardWSHandler(db, hub, table, cfg),
		healthHandler:  handler.NewHealthHandler(db, redisClient),
		jwtManager:     jwtManager,
	}
}

// SetupMiddleware registers global middleware.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes registers HTTP and WebSocket routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Save rate limiter. The client debounces to roughly one write per second
	// per board, so anything past this is a runaway loop.
	saveLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Loads only need optional auth: guests on public boards get the initial
	// document too, and role resolution downgrades anonymous callers itself.
	// Saves always require a real account.
	s.app.Get("/api/boards/:id/canvas", auth.OptionalAuthMiddleware(s.jwtManager), s.boardHandler.GetCanvas)
	s.app.Put("/api/boards/:id/canvas", auth.AuthMiddleware(s.jwtManager), saveLimiter, s.boardHandler.SaveCanvas)

	// sendBeacon cannot carry an Authorization header, token rides the query
	s.app.Post("/api/boards/:id/canvas/beacon", saveLimiter, s.boardHandler.SaveCanvasBeacon(s.jwtManager))

	// WebSocket board sync endpoint. Credentials come from the handshake
	// query string; the socket is rejected before upgrade when neither a
	// valid token nor a guest pair is present.
	s.app.Get("/ws/board", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		creds := auth.SocketCredentials{
			Token:     c.Query("token"),
			GuestID:   c.Query("guestId"),
			GuestName: c.Query("guestName"),
		}
		if creds.Token == "" {
			creds.Token = c.Cookies("access_token")
		}

		identity, err := auth.AuthenticateSocket(s.jwtManager, creds, s.cfg.Auth.AllowGuests)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("identity", identity)
		return c.Next()
	}, websocket.New(s.boardWSHandler.HandleConnection, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Whiteboard Sync Gateway starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
