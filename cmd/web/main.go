package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"toeicprep/internal/app"
	"toeicprep/internal/db"
	"toeicprep/internal/resultstore"
)

func main() {
	cfg := app.LoadConfig()
	ctx := context.Background()

	dbConn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		log.Printf("schema error: %v", err)
		os.Exit(1)
	}

	results, err := resultstore.OpenSQLite(ctx, cfg.ResultStorePath)
	if err != nil {
		log.Printf("result store error: %v", err)
		os.Exit(1)
	}
	defer results.Close()

	r := app.NewRouter(cfg, dbConn, results)

	log.Printf("toeicprep web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
