package main

import (
	"log"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	var version string
	db.Raw("SELECT version()").Scan(&version)
	if len(version) > 50 {
		version = version[:50] + "..."
	}
	log.Printf("📦 PostgreSQL: %s", version)

	srv := server.New(cfg, db)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
