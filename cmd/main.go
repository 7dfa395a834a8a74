package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"FinLedgerSaas/api/dataset"
	"FinLedgerSaas/internal/appmanager"
	"FinLedgerSaas/internal/jobs"
)

// InitDB loads DB config from env vars
func InitDB() (*sql.DB, error) {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	connStr := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		user, pass, host, port, name,
	)
	return sql.Open("postgres", connStr)
}

// InitPgxPool builds the pool used for batch inserts. Sized so several
// large-batch transactions can be in flight without starving dashboard
// reads on the shared database.
func InitPgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=10",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"),
	)
	return pgxpool.New(ctx, connStr)
}

func main() {
	// Load .env for local dev
	_ = godotenv.Load(".env")

	db, err := InitDB()
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	appmanager.SetDB(db)

	pool, err := InitPgxPool(context.Background())
	if err != nil {
		log.Fatal("failed to create pgx pool:", err)
	}
	appmanager.SetPgxPool(pool)

	manager := appmanager.NewAppManager()

	servicesCfg, err := appmanager.LoadServiceSequence("services.yaml")
	if err != nil {
		log.Fatal("failed to load service sequence:", err)
	}
	manager.AutoRegisterServices(servicesCfg)

	if err := manager.StartAll(); err != nil {
		log.Fatal("failed to start:", err)
	}

	// --- Wire the cron sweeps to the started dataset service ---
	dsIface := manager.GetServiceByName("dataset")
	if dsIface == nil {
		log.Fatal("Dataset service not found in manager")
	}
	dsSvc, ok := dsIface.(*dataset.Service)
	if !ok {
		log.Fatal("Dataset service type assertion failed")
	}
	cronSvc := jobs.NewCronService(
		appmanager.ConfigFor(servicesCfg, "cron"),
		dsSvc.SessionManager(),
		dsSvc.SourceArchiver(),
		dsSvc.Datasets(),
	)
	if err := cronSvc.Start(); err != nil {
		log.Fatal("failed to start cron service:", err)
	}
	manager.RegisterService(cronSvc)

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := manager.StopAll(); err != nil {
		log.Fatal("failed to stop:", err)
	}
	pool.Close()
	db.Close()
}
