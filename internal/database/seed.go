package database

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

const seedTenant = "default"

func SeedTeams(db *sqlx.DB) error {
	// Check if teams already exist
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM teams"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Teams already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding field teams...")

	teams := []map[string]interface{}{
		{"id": uuid.New().String(), "legacy_id": "T1", "name": "Downtown Crew", "max_daily_capacity": 8,
			"working_hours": `{"start": "08:00", "end": "17:00"}`, "skills": `["plumbing", "electrical"]`},
		{"id": uuid.New().String(), "legacy_id": "T2", "name": "North Valley Crew", "max_daily_capacity": 6,
			"working_hours": `{"start": "07:00", "end": "16:00"}`, "skills": `["hvac"]`},
		{"id": uuid.New().String(), "legacy_id": nil, "name": "On-Call Response", "max_daily_capacity": 10,
			"working_hours": `{"start": "06:00", "end": "22:00"}`, "skills": `["emergency"]`},
	}

	for _, team := range teams {
		_, err := db.Exec(`
			INSERT INTO teams (id, tenant_id, legacy_id, name, status, working_hours, max_daily_capacity, skills)
			VALUES ($1, $2, $3, $4, 'ACTIVE', $5, $6, $7)
		`, team["id"], seedTenant, team["legacy_id"], team["name"], team["working_hours"], team["max_daily_capacity"], team["skills"])

		if err != nil {
			return err
		}
	}

	log.Printf("✓ Successfully seeded %d teams", len(teams))
	return seedTasks(db, teams)
}

// seedTasks gives the first crew a day of work so availability and route
// endpoints return something meaningful on a fresh database
func seedTasks(db *sqlx.DB, teams []map[string]interface{}) error {
	today := time.Now()
	morning := time.Date(today.Year(), today.Month(), today.Day(), 9, 0, 0, 0, today.Location())

	statuses := []string{"completed", "in_progress", "pending", "pending"}
	for i, status := range statuses {
		_, err := db.Exec(`
			INSERT INTO tasks (id, tenant_id, team_id, status, scheduled_date, estimated_duration, address)
			VALUES ($1, $2, $3, $4, $5, 60, $6)
		`, uuid.New().String(), seedTenant, "T1", status,
			morning.Add(time.Duration(i)*90*time.Minute).Unix(), "325 S 1st St, San Jose")
		if err != nil {
			return err
		}
	}

	log.Printf("✓ Successfully seeded %d tasks", len(statuses))
	return nil
}

func SeedUsers(db *sqlx.DB) error {
	// Check if users already exist
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	fieldPassword, err := bcrypt.GenerateFromPassword([]byte("field123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []map[string]interface{}{
		{
			"id":        uuid.New().String(),
			"tenant_id": seedTenant,
			"email":     "field@fieldops.dev",
			"password":  string(fieldPassword),
			"name":      "Frankie Field",
			"role":      "field",
		},
		{
			"id":        uuid.New().String(),
			"tenant_id": seedTenant,
			"email":     "admin@fieldops.dev",
			"password":  string(adminPassword),
			"name":      "Admin User",
			"role":      "admin",
		},
	}

	for _, user := range users {
		query := `
			INSERT INTO users (id, tenant_id, email, password, name, role)
			VALUES (:id, :tenant_id, :email, :password, :name, :role)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", user["email"], user["role"])
	}

	log.Println("✓ Successfully seeded test users")
	log.Println("  📧 Field: field@fieldops.dev / field123")
	log.Println("  📧 Admin: admin@fieldops.dev / admin123")
	return nil
}
