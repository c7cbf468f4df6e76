package main

import (
	"fmt"
	"log"
	"os"

	"paintroom-be/internal/model"
	"paintroom-be/pkg/database"

	"github.com/joho/godotenv"
)

// defaultRoomCount is how many rooms a fresh database gets.
const defaultRoomCount = 4

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Running AutoMigrate...")
	if err := db.AutoMigrate(&model.Room{}, &model.Stroke{}); err != nil {
		log.Fatal("Error: AutoMigrate failed:", err)
	}

	// The replay query filters by room and walks seq upwards.
	log.Println("Step 2: Ensuring indexes...")
	indexSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_strokes_room_seq ON strokes (room_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_active_start ON rooms (is_active, session_start_at);`,
	}
	for _, sql := range indexSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute index SQL: %v. Continuing...", err)
		}
	}

	log.Println("Step 3: Seeding rooms...")
	var count int64
	if err := db.Model(&model.Room{}).Count(&count).Error; err != nil {
		log.Fatal("Error: Failed to count rooms:", err)
	}
	for i := count; i < defaultRoomCount; i++ {
		room := model.Room{Name: fmt.Sprintf("Room %d", i+1)}
		if err := db.Create(&room).Error; err != nil {
			log.Fatal("Error: Failed to seed room:", err)
		}
		log.Printf("Seeded room %d (%s)", room.Id, room.Name)
	}

	log.Println("Migration complete.")
}
