package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configPath
			if path == "" {
				path = config.ConfigFileName
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func newSecretsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}

	set := &cobra.Command{
		Use:   "set <NAME>",
		Short: "Store a secret; the value is read from the terminal or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSecrets(flags, func(s *config.SecretStore) error {
				value, err := readSecretValue(args[0])
				if err != nil {
					return err
				}
				s.Set(args[0], value)
				return nil
			})
		},
	}
	unset := &cobra.Command{
		Use:   "unset <NAME>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return updateSecrets(flags, func(s *config.SecretStore) error {
				s.Delete(args[0])
				return nil
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, err := dataDirFor(flags)
			if err != nil {
				return err
			}
			password, err := secretsPassword(dataDir)
			if err != nil {
				return err
			}
			store, err := config.LoadSecretStore(dataDir, password)
			if err != nil {
				return err
			}
			for _, name := range store.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.AddCommand(set, unset, list)
	return cmd
}

func dataDirFor(flags *rootFlags) (string, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return "", err
	}
	return cfg.DataDir, nil
}

// updateSecrets decrypts the store, applies fn and saves it again. A new
// file asks for a password twice.
func updateSecrets(flags *rootFlags, fn func(*config.SecretStore) error) error {
	dataDir, err := dataDirFor(flags)
	if err != nil {
		return err
	}
	var password string
	if config.SecretsFileExists(dataDir) {
		password, err = secretsPassword(dataDir)
	} else if password = os.Getenv(passwordEnv); password == "" {
		password, err = newPassword()
	}
	if err != nil {
		return err
	}

	store, err := config.LoadSecretStore(dataDir, password)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}
	if err := store.Save(dataDir, password); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "saved %s\n", filepath.Join(dataDir, config.SecretsFileName))
	return nil
}

// readSecretValue hides input on a terminal and reads one line otherwise.
func readSecretValue(name string) (string, error) {
	var value string
	if isTerminal() {
		v, err := readPassword(fmt.Sprintf("Value for %s: ", name))
		if err != nil {
			return "", err
		}
		value = v
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read value for %s: %w", name, err)
		}
		value = line
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty value for %s", name)
	}
	return value, nil
}
