package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/pkg/auth"
	"github.com/metamcp/metamcp/pkg/config"
	"github.com/metamcp/metamcp/pkg/store"
)

func newAPIKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCommand())
	cmd.AddCommand(newAPIKeyListCommand())
	cmd.AddCommand(newAPIKeyShowCommand())
	cmd.AddCommand(newAPIKeyRevokeCommand())
	return cmd
}

// withAuthService loads config, connects to the store, and hands an auth
// service to fn.
func withAuthService(ctx context.Context, fn func(context.Context, *auth.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	service := auth.NewService(
		st.APIKeys,
		auth.NewEncryptor(cfg.EncryptionKey),
		auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
	)
	return fn(ctx, service)
}

func newAPIKeyCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new API key",
		Long: `Create a new API key with the given display name. The plaintext key
is printed exactly once; store it securely.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthService(cmd.Context(), func(ctx context.Context, service *auth.Service) error {
				key, plaintext, err := service.CreateKey(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Created API key %q (id %s)\n", key.Name, key.ID)
				fmt.Printf("Key: %s\n", plaintext)
				return nil
			})
		},
	}
}

func newAPIKeyListCommand() *cobra.Command {
	var includeInactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := st.APIKeys.List(ctx, includeInactive)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tCREATED\tLAST USED")
			for _, key := range keys {
				lastUsed := "never"
				if key.LastUsedAt != nil {
					lastUsed = key.LastUsedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
					key.ID, key.Name, key.IsActive,
					key.CreatedAt.Format("2006-01-02 15:04"), lastUsed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&includeInactive, "all", false, "include revoked keys")
	return cmd
}

func newAPIKeyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Reveal the plaintext of a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			return withAuthService(cmd.Context(), func(ctx context.Context, service *auth.Service) error {
				key, plaintext, err := service.RevealKey(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Name: %s\nActive: %t\nKey: %s\n", key.Name, key.IsActive, plaintext)
				return nil
			})
		},
	}
}

func newAPIKeyRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			return withAuthService(cmd.Context(), func(ctx context.Context, service *auth.Service) error {
				if err := service.Revoke(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Revoked API key %s\n", id)
				return nil
			})
		},
	}
}
