package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DataMigration is a one-off data fix recorded in schema_migrations_log
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

// addressColumns hold hex values compared case-sensitively by the
// repositories.
var addressColumns = map[string][]string{
	"fee_rules":            {"updated_by"},
	"role_assignments":     {"holder", "updated_by"},
	"fast_transfer_tokens": {"token", "updated_by"},
	"settlements":          {"caller", "burn_token", "mint_recipient", "restricted_minter", "tx_hash"},
	"fee_withdrawals":      {"collector", "token"},
}

// GetDataMigrations returns all data migrations in order.
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Lowercase stored addresses and hashes",
			Up:          lowercaseAddresses,
		},
	}
}

func lowercaseAddresses(db *sql.DB) error {
	for table, columns := range addressColumns {
		for _, column := range columns {
			query := fmt.Sprintf(`UPDATE %s SET %s = LOWER(%s) WHERE %s <> LOWER(%s)`,
				table, column, column, column, column)
			result, err := db.Exec(query)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", table, column, err)
			}
			n, _ := result.RowsAffected()
			if n > 0 {
				logrus.Infof("✅ Lowercased %d rows in %s.%s", n, table, column)
			}
		}
	}
	return nil
}

const createMigrationsLog = `
	CREATE TABLE IF NOT EXISTS schema_migrations_log (
		id SERIAL PRIMARY KEY,
		version VARCHAR(50) NOT NULL UNIQUE,
		description TEXT,
		executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
`

// RunDataMigrations applies every migration not yet in schema_migrations_log.
func RunDataMigrations(db *sql.DB) error {
	return runDataMigrations(db, GetDataMigrations())
}

func runDataMigrations(db *sql.DB, migrations []DataMigration) error {
	if _, err := db.Exec(createMigrationsLog); err != nil {
		return err
	}

	for _, migration := range migrations {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			logrus.Debugf("📋 Data migration %s already applied", migration.Version)
			continue
		}

		logrus.Infof("🚀 Running data migration: %s", migration.Description)
		if err := migration.Up(db); err != nil {
			return fmt.Errorf("%s: %w", migration.Version, err)
		}

		if _, err := db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, strings.TrimSpace(migration.Description),
		); err != nil {
			return err
		}
		logrus.Infof("✅ Data migration %s completed", migration.Version)
	}
	return nil
}
