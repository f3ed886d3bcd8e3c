package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentd/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your agentd installation",
		Long: `Verifies that agentd's configuration, decision backends, databases, and
workspace are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("agentd doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'agentd init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Workspace directory exists
			workspace := config.ExpandPath(cfg.General.Workspace)
			if workspace == "" {
				printWarn("Workspace", "not configured")
				warned++
			} else if info, err := os.Stat(workspace); err != nil {
				printFail("Workspace", fmt.Sprintf("not found: %s", workspace))
				failed++
			} else if !info.IsDir() {
				printFail("Workspace", fmt.Sprintf("not a directory: %s", workspace))
				failed++
			} else {
				printPass("Workspace", workspace)
				passed++
			}

			// 4. Memory database writable
			if cfg.Memory.Enabled && cfg.Memory.DBPath != "" {
				dbPath := config.ExpandPath(cfg.Memory.DBPath)
				if err := checkDatabase(dbPath); err != nil {
					printFail("Memory database", err.Error())
					failed++
				} else {
					printPass("Memory database", dbPath)
					passed++
				}
			} else {
				printWarn("Memory database", "disabled: sessions run without prior context")
				warned++
			}

			// 5. Trace database writable
			if cfg.Trace.DBPath != "" {
				dbPath := config.ExpandPath(cfg.Trace.DBPath)
				if err := checkDatabase(dbPath); err != nil {
					printFail("Trace database", err.Error())
					failed++
				} else {
					printPass("Trace database", dbPath)
					passed++
				}
			} else {
				printWarn("Trace database", "disabled: sessions leave no persistent audit trail")
				warned++
			}

			// 6. Decision backends
			backendCount := 0
			for name, b := range cfg.Backends {
				if !b.Enabled {
					continue
				}
				backendCount++
				if b.APIBase == "" {
					printWarn("Backend: "+name, "enabled but no API base configured")
					warned++
				} else {
					printPass("Backend: "+name, b.APIBase)
					passed++
				}
			}
			if backendCount == 0 {
				printFail("Backends", "no decision backends enabled")
				failed++
			}
			if _, ok := cfg.Backends[cfg.Provider.Default]; !ok {
				printFail("Default backend", fmt.Sprintf("%q is not configured", cfg.Provider.Default))
				failed++
			} else {
				printPass("Default backend", cfg.Provider.Default)
				passed++
			}

			// 7. Policy sanity
			if cfg.Policy.AllowNetwork && len(cfg.Policy.AllowedDomains) == 0 {
				printWarn("Policy", "network enabled with no domain patterns: unscoped tools may reach anywhere")
				warned++
			} else {
				printPass("Policy", policySummaryLine(cfg))
				passed++
			}
			if cfg.Policy.RulesFile != "" {
				rulesPath := config.ExpandPath(cfg.Policy.RulesFile)
				if _, err := os.Stat(rulesPath); err != nil {
					printWarn("Policy rules", fmt.Sprintf("configured but not found: %s", rulesPath))
					warned++
				} else {
					printPass("Policy rules", rulesPath)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running agentd.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nagentd should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! agentd is ready to run.\n")
			}
			return nil
		},
	}
}

func policySummaryLine(cfg *config.Config) string {
	return fmt.Sprintf("network=%v writes=%v deny_tools=%d",
		cfg.Policy.AllowNetwork, cfg.Policy.AllowWrites, len(cfg.Policy.DenyTools))
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
