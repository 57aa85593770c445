package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tripbot/internal/config"
	"tripbot/internal/provider"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your tripbot installation",
		Long: `Verifies that the configuration, credentials, model provider, database,
and listening ports are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfgPath := resolveConfigPath()
			fmt.Fprintf(out, "tripbot doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &report{out: out}

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.LoadOrDefaults(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			if _, err := newClassifier(cfg); err != nil {
				r.fail("Intent rules", err.Error())
			} else if cfg.Intents.RulesFile != "" {
				r.pass("Intent rules", cfg.Intents.RulesFile)
			} else {
				r.pass("Intent rules", "built-in")
			}

			if cfg.AMap.APIKey == "" {
				r.warn("AMap key", "not set (TRIPBOT_AMAP_API_KEY); map tools will fail")
			} else {
				r.pass("AMap key", "configured")
			}
			if cfg.Baidu.APIKey == "" || cfg.Baidu.SecretKey == "" {
				r.warn("Baidu credentials", "not set; photo analysis will fail")
			} else {
				r.pass("Baidu credentials", "configured")
			}

			prov, err := provider.New(cfg.LLM, logger)
			if err != nil {
				r.fail("Model provider", err.Error())
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				err := prov.Healthy(ctx)
				cancel()
				if err != nil {
					r.warn("Model provider", fmt.Sprintf("%s unreachable: %v", prov.Name(), err))
				} else {
					r.pass("Model provider", prov.Name()+" reachable")
				}
			}

			dbPaths := map[string]bool{}
			if cfg.Profiles.Backend == "sqlite" {
				dbPaths[cfg.Profiles.DBPath] = true
			}
			if cfg.History.Archive {
				dbPaths[cfg.History.DBPath] = true
			}
			for path := range dbPaths {
				if err := checkDatabase(cmd.Context(), path); err != nil {
					r.fail("Database", err.Error())
				} else {
					r.pass("Database", path)
				}
			}

			if ws := cfg.Channels.WebSocket; ws.Enabled {
				r.port("WebSocket port", ws.Host, ws.Port)
			}
			if cfg.Metrics.Enabled {
				r.port("Metrics port", cfg.Metrics.Host, cfg.Metrics.Port)
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

type report struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) port(check, host string, port int) {
	if err := checkPort(host, port); err != nil {
		r.warn(check, fmt.Sprintf("port %d may be in use: %v", port, err))
		return
	}
	r.pass(check, fmt.Sprintf("%s available", net.JoinHostPort(host, strconv.Itoa(port))))
}

func (r *report) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Fprintf(r.out, "\nPlease fix the failed checks before running tripbot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Fprintf(r.out, "\ntripbot should start, but some features will not work until the warnings are fixed.\n")
	} else {
		fmt.Fprintf(r.out, "\nAll checks passed! tripbot is ready to run.\n")
	}
	return nil
}

func checkDatabase(ctx context.Context, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
