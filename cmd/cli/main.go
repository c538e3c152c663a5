package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/config"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/internal/services"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg/migrations"
)

const usage = `usage: cli <command> [--env=path] [flags]

commands:
  migrate        apply pending migrations
  migrate-status print the state of every migration
  seed-tenant    create or update a tenant, see cli seed-tenant -h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	switch os.Args[1] {
	case "migrate":
		err = pg.Migrate(pgConf, migrations.FS, migrations.Dir)
	case "migrate-status":
		err = pg.MigrationStatus(pgConf, migrations.FS, migrations.Dir)
	case "seed-tenant":
		err = seedTenant(pgConf, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("cli: "+os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func seedTenant(pgConf pg.Config, args []string) error {
	fs := flag.NewFlagSet("seed-tenant", flag.ExitOnError)
	fs.String("env", "", "dotenv file")
	tenantID := fs.String("tenant-id", services.DefaultTenantID, "tenant id")
	name := fs.String("name", services.DefaultTenantName, "display name")
	noCode := fs.Bool("no-code", false, "derive contacts from threads in the widget")
	provider := fs.String("sms-provider", "", "default carrier key")
	providers := fs.String("sms-providers", "", "region routes, e.g. +47=sveve,default=stub")
	from := fs.String("sms-from", "", "sender id or number")
	webhook := fs.String("webhook-url", "", "host webhook receiving outbox events")
	installID := fs.String("install-id", "", "install with its own webhook")
	installWebhook := fs.String("install-webhook-url", "", "webhook of the install")
	preserveKey := fs.Bool("preserve-api-key", false, "keep the api key of an existing tenant")
	seedDemo := fs.Bool("seed-demo", false, "write the demo contacts and group")
	if err := fs.Parse(args); err != nil {
		return err
	}

	routes, err := parseProviders(*providers)
	if err != nil {
		return err
	}

	db, err := pg.CreateReadWrite(pgConf, pgConf, false)
	if err != nil {
		return err
	}

	svc := services.NewTenantService(
		repository.NewTenantRepository(db),
		repository.NewDirectoryRepository(db),
		db,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := svc.Setup(ctx, services.SetupRequest{
		TenantID:          *tenantID,
		Name:              *name,
		NoCode:            *noCode,
		SmsProvider:       *provider,
		SmsProviders:      routes,
		SmsFrom:           *from,
		HostWebhookURL:    *webhook,
		PreserveAPIKey:    *preserveKey,
		SeedDemo:          *seedDemo,
		InstallID:         *installID,
		InstallWebhookURL: *installWebhook,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// parseProviders reads "prefix=carrier" pairs separated by commas.
func parseProviders(v string) (map[string]string, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		prefix, carrier, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || prefix == "" || carrier == "" {
			return nil, fmt.Errorf("invalid provider route %q", pair)
		}
		out[prefix] = carrier
	}
	return out, nil
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Open(".env"); err != nil {
		return ""
	}
	return ".env"
}
