package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
)

// expected lists the tables and columns the dispatcher writes to.
var expected = map[string][]string{
	"fee_rules":             {"destination_domain", "perc_fee_bips", "flat_fee", "updated_by"},
	"role_assignments":      {"role", "holder", "updated_by"},
	"fast_transfer_tokens":  {"token", "allowed", "updated_by"},
	"settlements":           {"id", "route", "caller", "amount", "fee", "net_amount", "destination_domain", "tx_hash"},
	"fee_withdrawals":       {"id", "collector", "token", "amount"},
	"schema_migrations_log": {"version", "description"},
}

func main() {
	dsn := flag.String("dsn", "", "postgres DSN, defaults to database.dsn from the config")
	configPath := flag.String("config", "", "Path to config.yaml")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and schema...")

	if *dsn == "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		log.Fatal("No DSN configured")
	}

	sqlDB, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	missing := 0
	for table, columns := range expected {
		for _, column := range columns {
			var n int
			err := sqlDB.QueryRow(`
				SELECT count(*)
				FROM information_schema.columns
				WHERE table_schema = 'public'
				AND table_name = $1
				AND column_name = $2
			`, table, column).Scan(&n)
			if err != nil {
				log.Fatalf("Failed to inspect %s.%s: %v", table, column, err)
			}
			if n == 0 {
				fmt.Printf("❌ %s.%s is missing\n", table, column)
				missing++
			}
		}
	}

	if missing > 0 {
		fmt.Printf("\n❌ %d columns missing, start the dispatcher once to migrate\n", missing)
		os.Exit(1)
	}
	fmt.Println("✅ Schema is complete")
}
