package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"helpdesk-assistant/internal/config"
	pg "helpdesk-assistant/internal/infra/db/postgres"
	"helpdesk-assistant/internal/infra/web"
)

const demoCompany = "acme"

// Seeds a demo tenant with knowledge base articles so the pipeline can
// be exercised end to end, and prints a JWT for that tenant.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	migrate := flag.String("migrate", "", "optional path to a schema SQL file to apply first")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if *migrate != "" {
		schema, err := os.ReadFile(*migrate)
		if err != nil {
			log.Fatalf("read schema: %v", err)
		}
		if _, err := pool.Exec(ctx, string(schema)); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
		fmt.Printf("applied %s\n", *migrate)
	}

	var existing int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM company_settings WHERE company_id = $1;`, demoCompany).Scan(&existing); err != nil {
		log.Fatalf("check settings: %v", err)
	}
	if existing > 0 {
		fmt.Printf("company %q already seeded. No changes.\n", demoCompany)
	} else {
		_, err = pool.Exec(ctx, `
INSERT INTO company_settings (company_id, assistant_name, instructions, encrypt_transcripts)
VALUES ($1, $2, $3, FALSE);`,
			demoCompany, "Ada",
			"You are the internal IT helpdesk assistant for Acme Corp. Prefer knowledge base answers; open a ticket when you cannot resolve the issue.")
		if err != nil {
			log.Fatalf("seed settings: %v", err)
		}

		articles := []struct {
			Title string
			Body  string
		}{
			{"Resetting your VPN password", "Open the self-service portal, choose Security, then Reset VPN credentials. The new password propagates within five minutes."},
			{"Printer shows offline", "Power cycle the printer, then remove and re-add it from Settings > Printers. If it stays offline, the print spooler on the floor server may need a restart; open a ticket."},
			{"Requesting new hardware", "Hardware requests go through your manager in the procurement portal. Standard laptops ship within two weeks."},
		}
		for _, a := range articles {
			if _, err := pool.Exec(ctx, `
INSERT INTO kb_articles (id, company_id, title, body)
VALUES ($1, $2, $3, $4);`, ulid.Make().String(), demoCompany, a.Title, a.Body); err != nil {
				log.Fatalf("seed article %q: %v", a.Title, err)
			}
			fmt.Printf("seeded article: %s\n", a.Title)
		}
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret"
	}
	auth := web.NewAuthManager(secret, true)
	token, err := auth.Mint(demoCompany, "emp-1", 24*time.Hour)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("dev token (company=%s user=emp-1, 24h):\n%s\n", demoCompany, token)
}
