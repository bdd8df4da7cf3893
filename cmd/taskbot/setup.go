package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/persistence"
)

// loadConfig applies the --data-dir override after loading.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	return cfg, nil
}

// openHistory returns the configured history log. The sqlite backend also
// returns the database so the event log can share it; callers close it.
func openHistory(ctx context.Context, cfg *config.Config) (estimate.Log, *persistence.DB, error) {
	path := cfg.Resolve(cfg.History.Path)
	if cfg.History.Backend == config.HistoryFile {
		return estimate.NewFileLog(afero.NewOsFs(), path), nil, nil
	}
	db, err := persistence.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return db.History(), db, nil
}

// secretsPassword reads TASKBOT_PASSWORD or prompts on the terminal. It
// returns "" without prompting when there is no secrets file.
func secretsPassword(dataDir string) (string, error) {
	if !config.SecretsFileExists(dataDir) {
		return "", nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	if !isTerminal() {
		return "", fmt.Errorf("secrets file is encrypted: set %s or run from a terminal", passwordEnv)
	}
	return readPassword("Secrets password: ")
}

func isTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// newPassword asks twice, for creating the secrets file.
func newPassword() (string, error) {
	const maxAttempts = 3
	if !isTerminal() {
		return "", fmt.Errorf("no secrets file yet: set %s or run from a terminal", passwordEnv)
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		first, err := readPassword("New secrets password: ")
		if err != nil {
			return "", err
		}
		if first == "" {
			fmt.Fprintln(os.Stderr, "Password must not be empty.")
			continue
		}
		second, err := readPassword("Confirm password: ")
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		fmt.Fprintln(os.Stderr, "Passwords do not match.")
	}
	return "", fmt.Errorf("password not confirmed after %d attempts", maxAttempts)
}
