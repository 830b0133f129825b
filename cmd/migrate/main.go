package main

import (
	"fmt"
	"log"
	"os"

	"fieldops-backend/internal/database"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// Connect to database
	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully!")

	if err := database.SeedUsers(db); err != nil {
		log.Fatalf("User seeding failed: %v", err)
	}
	if err := database.SeedTeams(db); err != nil {
		log.Fatalf("Team seeding failed: %v", err)
	}

	// Query and display summary
	var result struct {
		Teams     int `db:"teams"`
		Users     int `db:"users"`
		Tasks     int `db:"tasks"`
		Locations int `db:"locations"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM teams) AS teams,
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM tasks) AS tasks,
			(SELECT COUNT(*) FROM team_locations) AS locations
	`

	if err := db.Get(&result, query); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Teams:           %d\n", result.Teams)
	fmt.Printf("Users:           %d\n", result.Users)
	fmt.Printf("Tasks:           %d\n", result.Tasks)
	fmt.Printf("Team locations:  %d\n", result.Locations)
	fmt.Println("============================================================")
}
