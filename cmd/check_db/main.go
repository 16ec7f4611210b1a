package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}

	// Database connection
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// Check if canvas_data column exists
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.columns
			WHERE table_name = 'boards'
			AND column_name = 'canvas_data'
		)
	`
	if err := db.Raw(query).Scan(&exists).Error; err != nil {
		log.Fatal("Failed to check canvas_data column:", err)
	}

	fmt.Printf("📊 canvas_data column exists: %v\n", exists)
	fmt.Println()

	if exists {
		// Get board statistics
		type BoardStats struct {
			Total       int64
			WithCanvas  int64
			PublicView  int64
			PublicEdit  int64
			WithPreview int64
		}
		var stats BoardStats
		query = `
			SELECT
				COUNT(*) as total,
				COUNT(CASE WHEN canvas_data IS NOT NULL THEN 1 END) as with_canvas,
				COUNT(CASE WHEN public_access = 'view' THEN 1 END) as public_view,
				COUNT(CASE WHEN public_access = 'edit' THEN 1 END) as public_edit,
				COUNT(CASE WHEN thumbnail_url != '' THEN 1 END) as with_preview
			FROM boards
		`
		if err := db.Raw(query).Scan(&stats).Error; err != nil {
			log.Fatal("Failed to get statistics:", err)
		}

		fmt.Println("📈 Board Statistics:")
		fmt.Printf("  - Total boards: %d\n", stats.Total)
		fmt.Printf("  - With saved canvas: %d\n", stats.WithCanvas)
		fmt.Printf("  - Public view: %d\n", stats.PublicView)
		fmt.Printf("  - Public edit: %d\n", stats.PublicEdit)
		fmt.Printf("  - With thumbnail: %d\n", stats.WithPreview)
		fmt.Println()

		// Largest saved canvases
		type CanvasInfo struct {
			ID    string
			Title string
			Bytes int64
		}
		var largest []CanvasInfo
		query = `
			SELECT id, title, LENGTH(canvas_data) as bytes
			FROM boards
			WHERE canvas_data IS NOT NULL
			ORDER BY bytes DESC
			LIMIT 5
		`
		if err := db.Raw(query).Scan(&largest).Error; err != nil {
			log.Fatal("Failed to get canvas sizes:", err)
		}

		fmt.Println("📋 Largest canvases:")
		for _, b := range largest {
			fmt.Printf("  - %s (%s): %d bytes\n", b.Title, b.ID, b.Bytes)
		}
		fmt.Println()
	}

	// Permission statistics
	type PermStats struct {
		Total   int64
		Editors int64
		Viewers int64
	}
	var perms PermStats
	query = `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN permission = 'editor' THEN 1 END) as editors,
			COUNT(CASE WHEN permission = 'viewer' THEN 1 END) as viewers
		FROM board_permissions
	`
	if err := db.Raw(query).Scan(&perms).Error; err != nil {
		log.Fatal("Failed to get permission statistics:", err)
	}

	fmt.Println("📈 Permission Statistics:")
	fmt.Printf("  - Total grants: %d\n", perms.Total)
	fmt.Printf("  - Editors: %d\n", perms.Editors)
	fmt.Printf("  - Viewers: %d\n", perms.Viewers)
}
