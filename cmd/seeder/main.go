package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/warp/coinvault/internal/config"
)

const (
	benchmarkUserCount   = 1000
	benchmarkUserPrefix  = "bench_user_"
	treasuryInitial      = "10000000.00000000"
	bonusPoolInitial     = "1000000.00000000"
	benchUserInitial     = "500.00000000"
)

// main bootstraps the fixed rows the core treats as read-only: the
// asset catalog, the system accounts each operation resolves by type,
// and a pool of benchmark user accounts for cmd/benchmark.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DB.Source)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	log.Println("--- seeding asset types ---")
	assetID := seedAsset(ctx, conn, "GOLD_COIN", "Gold Coin", 8)

	log.Println("--- seeding system accounts ---")
	treasuryID := seedSystemAccount(ctx, conn, "SYSTEM_TREASURY", "Treasury Pool")
	seedSystemAccount(ctx, conn, "SYSTEM_REVENUE", "Revenue Pool")
	bonusID := seedSystemAccount(ctx, conn, "SYSTEM_BONUS", "Bonus Pool")
	seedSystemAccount(ctx, conn, "SYSTEM_RESERVE", "Reserve Pool")

	seedBalance(ctx, conn, treasuryID, assetID, treasuryInitial)
	seedBalance(ctx, conn, bonusID, assetID, bonusPoolInitial)

	var existing int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE type = 'USER'`).Scan(&existing); err != nil {
		log.Fatalf("count user accounts: %v", err)
	}
	if existing >= benchmarkUserCount {
		log.Printf("already have %d user accounts, skipping benchmark seed", existing)
		return
	}

	log.Printf("seeding %d benchmark user accounts...", benchmarkUserCount)
	userIDs := seedBenchmarkUsers(ctx, conn, benchmarkUserCount)
	for _, id := range userIDs {
		seedBalance(ctx, conn, id, assetID, benchUserInitial)
	}
	log.Printf("seeded %d benchmark user accounts", len(userIDs))
}

func seedAsset(ctx context.Context, conn *pgx.Conn, code, displayName string, decimals int) uuid.UUID {
	var id uuid.UUID
	err := conn.QueryRow(ctx,
		`INSERT INTO asset_types (code, display_name, decimals, is_active)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (code) DO UPDATE SET display_name = EXCLUDED.display_name
		 RETURNING id`,
		code, displayName, decimals,
	).Scan(&id)
	if err != nil {
		log.Fatalf("seed asset %s: %v", code, err)
	}
	return id
}

func seedSystemAccount(ctx context.Context, conn *pgx.Conn, accountType, name string) uuid.UUID {
	var id uuid.UUID
	err := conn.QueryRow(ctx,
		`INSERT INTO accounts (type, name, is_active)
		 SELECT $1, $2, TRUE
		 WHERE NOT EXISTS (SELECT 1 FROM accounts WHERE type = $1)
		 RETURNING id`,
		accountType, name,
	).Scan(&id)
	if err == nil {
		return id
	}
	// Already present: look it up instead.
	if err := conn.QueryRow(ctx, `SELECT id FROM accounts WHERE type = $1`, accountType).Scan(&id); err != nil {
		log.Fatalf("seed system account %s: %v", accountType, err)
	}
	return id
}

func seedBalance(ctx context.Context, conn *pgx.Conn, accountID, assetID uuid.UUID, balance string) {
	_, err := conn.Exec(ctx,
		`INSERT INTO balance_cache (account_id, asset_type_id, balance, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, asset_type_id) DO NOTHING`,
		accountID, assetID, balance, time.Now(),
	)
	if err != nil {
		log.Fatalf("seed balance for %s: %v", accountID, err)
	}
}

// seedBenchmarkUsers bulk-inserts n user accounts via CopyFrom, the way
// ledgerops's seeder bulk-loads accounts.
func seedBenchmarkUsers(ctx context.Context, conn *pgx.Conn, n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	rows := make([][]any, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		ids[i] = uuid.New()
		rows[i] = []any{ids[i], "USER", fmt.Sprintf("%s%d", benchmarkUserPrefix, i), fmt.Sprintf("Benchmark User %d", i), true, now}
	}

	_, err := conn.CopyFrom(
		ctx,
		pgx.Identifier{"accounts"},
		[]string{"id", "type", "user_id", "name", "is_active", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		log.Fatalf("bulk insert benchmark users: %v", err)
	}
	return ids
}
