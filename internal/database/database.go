package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 Database URL length: %d characters", len(dbURL))
	log.Printf("   📍 URL prefix: %s...", dbURL[:min(30, len(dbURL))])
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Println("❌ DATABASE CONNECTION FAILED AT sqlx.Connect()")
		log.Printf("   Error type: %T", err)
		log.Printf("   Error message: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Println("❌ DATABASE CONNECTION FAILED AT Ping()")
		log.Printf("   Error message: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	return db, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Create users table
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('field', 'admin')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create teams table (the roster). legacy_id is the identifier some
		// mobile clients still send; it is unique per tenant when present.
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			legacy_id TEXT,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK(status IN ('ACTIVE', 'INACTIVE', 'DECOMMISSIONED')),
			members JSONB NOT NULL DEFAULT '[]',
			working_hours JSONB,
			max_daily_capacity INT,
			emergency_contact TEXT,
			vehicle JSONB,
			skills JSONB NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create tasks table (the work collaborator)
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'in_progress', 'completed', 'cancelled')),
			scheduled_date BIGINT NOT NULL,
			estimated_duration INT NOT NULL DEFAULT 60,
			actual_start BIGINT,
			actual_duration INT,
			satisfaction_rating DOUBLE PRECISION,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			address TEXT
		)`,

		// Create team_locations table: exactly one live row per (tenant, team),
		// updated via compare-and-set on version. history holds the bounded
		// movement ring, oldest first.
		`CREATE TABLE IF NOT EXISTS team_locations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			team_name TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			address TEXT,
			accuracy DOUBLE PRECISION,
			altitude DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			status TEXT NOT NULL CHECK(status IN ('ACTIVE', 'INACTIVE', 'BREAK', 'OFFLINE', 'EMERGENCY')),
			connectivity TEXT NOT NULL DEFAULT 'ONLINE' CHECK(connectivity IN ('ONLINE', 'OFFLINE', 'POOR')),
			battery_level INT,
			current_task_id TEXT,
			device_id TEXT,
			app_version TEXT,
			history JSONB NOT NULL DEFAULT '[]',
			last_update BIGINT NOT NULL,
			status_changed_at BIGINT,
			version BIGINT NOT NULL DEFAULT 1,
			deleted_at BIGINT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			UNIQUE (tenant_id, team_id)
		)`,

		// Create route_progress table: one row per team per route day
		`CREATE TABLE IF NOT EXISTS route_progress (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			route_date TEXT NOT NULL,
			stops JSONB NOT NULL DEFAULT '[]',
			route_status TEXT NOT NULL CHECK(route_status IN ('PENDING', 'IN_PROGRESS', 'PAUSED', 'COMPLETED', 'CANCELLED')),
			current_stop_index INT NOT NULL DEFAULT 0,
			completed_count INT NOT NULL DEFAULT 0,
			estimated_completion_time BIGINT,
			progress_updates JSONB NOT NULL DEFAULT '[]',
			version BIGINT NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			UNIQUE (tenant_id, team_id, route_date)
		)`,

		// Create team_availability table: derived cache, one row per team
		`CREATE TABLE IF NOT EXISTS team_availability (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('AVAILABLE', 'BUSY', 'BREAK', 'OFFLINE')),
			status_since BIGINT NOT NULL DEFAULT 0,
			working_hours JSONB NOT NULL DEFAULT '{}',
			unavailable_periods JSONB NOT NULL DEFAULT '[]',
			skills JSONB NOT NULL DEFAULT '[]',
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			UNIQUE (tenant_id, team_id)
		)`,

		// Create audit_events table (append-only)
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			event TEXT NOT NULL,
			details JSONB,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create FCM tokens table
		`CREATE TABLE IF NOT EXISTS fcm_tokens (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			device_type TEXT NOT NULL CHECK(device_type IN ('ios', 'android')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_teams_tenant ON teams(tenant_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_teams_tenant_legacy ON teams(tenant_id, legacy_id) WHERE legacy_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_tenant_team ON tasks(tenant_id, team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_scheduled_date ON tasks(scheduled_date)`,
		`CREATE INDEX IF NOT EXISTS idx_team_locations_tenant ON team_locations(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_team_locations_status ON team_locations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_team_locations_last_update ON team_locations(last_update)`,
		`CREATE INDEX IF NOT EXISTS idx_route_progress_tenant_team ON route_progress(tenant_id, team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_route_progress_date ON route_progress(route_date)`,
		`CREATE INDEX IF NOT EXISTS idx_team_availability_tenant ON team_availability(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_team ON audit_events(tenant_id, team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_fcm_tokens_user_id ON fcm_tokens(user_id)`,

		// Migration: tenant column for pre-multi-tenant deployments
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS tenant_id TEXT NOT NULL DEFAULT 'default'`,

		// Migration: optimistic-lock version for rows created before CAS writes
		`ALTER TABLE team_locations ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1`,
		`ALTER TABLE route_progress ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1`,

		// Migration: soft-delete marker for decommissioned teams
		`ALTER TABLE team_locations ADD COLUMN IF NOT EXISTS deleted_at BIGINT`,

		// Migration: widen availability status constraint (older deployments
		// lacked BREAK)
		`ALTER TABLE team_availability DROP CONSTRAINT IF EXISTS team_availability_status_check`,
		`ALTER TABLE team_availability ADD CONSTRAINT team_availability_status_check CHECK(status IN ('AVAILABLE', 'BUSY', 'BREAK', 'OFFLINE'))`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}
