package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"agrisaarthi/internal/config"
	"agrisaarthi/internal/memory"
	"agrisaarthi/internal/provider"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your AgriSaarthi setup",
		Long: `Verifies that the configuration, response catalog, database and
listening port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &doctor{out: cmd.OutOrStdout()}
			d.run(resolveConfigPath())
			if d.failed > 0 {
				return fmt.Errorf("%d check(s) failed", d.failed)
			}
			return nil
		},
	}
}

// doctor prints one line per check and tallies the outcomes.
type doctor struct {
	out                    io.Writer
	passed, warned, failed int
}

func (d *doctor) run(cfgPath string) {
	fmt.Fprintf(d.out, "AgriSaarthi Doctor v%s\n", version)
	fmt.Fprintf(d.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	cfg := config.Defaults()
	if _, err := os.Stat(cfgPath); err != nil {
		d.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
	} else if loaded, err := config.Load(cfgPath); err != nil {
		d.fail("Config validation", err.Error())
	} else {
		cfg = loaded
		d.pass("Config file", cfgPath)
	}

	if cfg.Mock.CatalogPath != "" {
		if _, err := provider.LoadCatalog(cfg.Mock.CatalogPath); err != nil {
			d.fail("Catalog", err.Error())
		} else {
			d.pass("Catalog", cfg.Mock.CatalogPath)
		}
	} else if _, err := provider.DefaultCatalog(); err != nil {
		d.fail("Catalog", "embedded catalog invalid: "+err.Error())
	} else {
		d.pass("Catalog", "embedded")
	}

	if cfg.Memory.DBPath == ":memory:" {
		d.pass("Database", "in-memory")
	} else if schema, err := checkDatabase(cfg.Memory.DBPath); err != nil {
		d.fail("Database", err.Error())
	} else {
		d.pass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Memory.DBPath, schema))
	}

	if cfg.Channels.Web.Enabled {
		if err := checkPort(cfg.Channels.Web.Host, cfg.Channels.Web.Port); err != nil {
			d.warn("Web port", fmt.Sprintf("port %d may be in use: %v", cfg.Channels.Web.Port, err))
		} else {
			d.pass("Web port", fmt.Sprintf(":%d available", cfg.Channels.Web.Port))
		}
	}

	if cfg.Channels.Telegram.Enabled {
		if len(cfg.Channels.Telegram.AllowFrom) == 0 {
			d.warn("Telegram", "enabled with an empty allow list, anyone can chat")
		} else {
			d.pass("Telegram", fmt.Sprintf("%d allowed user(s)", len(cfg.Channels.Telegram.AllowFrom)))
		}
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			d.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			d.pass("Log file", cfg.General.LogFile)
		}
	}

	fmt.Fprintf(d.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.out, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}

// checkDatabase opens the file, applies migrations and reports the schema version.
func checkDatabase(dbPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return 0, fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return 0, fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	if err := memory.RunMigrations(db, logger); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	return memory.GetSchemaVersion(db)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
