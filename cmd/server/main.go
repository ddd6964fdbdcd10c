package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/entrega-local/api/internal/config"
	"github.com/entrega-local/api/internal/router"
	"github.com/entrega-local/api/internal/store"
	"github.com/entrega-local/api/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	adminPasswordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	r := router.New(cfg, st, hub, adminPasswordHash)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}

// openStore picks Postgres when DATABASE_URL is set; otherwise an in-memory
// store pre-loaded with a small demo menu.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not set, using in-memory store")
		mem := store.NewMemory()
		seedDemoMenu(ctx, mem)
		return mem, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	pg := store.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Println("Connected to database")
	return pg, pool.Close, nil
}

func seedDemoMenu(ctx context.Context, st store.Store) {
	items := []store.MenuItem{
		{ID: "hamburguer-classico", Name: "Hambúrguer Clássico", Description: "Pão, carne 160g, queijo e salada", Category: "Lanches", Price: decimal.NewFromFloat(28.90)},
		{ID: "batata-frita", Name: "Batata Frita", Description: "Porção média", Category: "Acompanhamentos", Price: decimal.NewFromFloat(14.50)},
		{ID: "refrigerante-lata", Name: "Refrigerante Lata", Description: "350ml", Category: "Bebidas", Price: decimal.NewFromFloat(6.00)},
	}
	for _, item := range items {
		if err := st.CreateMenuItem(ctx, item); err != nil {
			log.Printf("ERROR: seed menu item %s: %v", item.ID, err)
		}
	}
}
