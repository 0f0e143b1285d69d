package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/service"
	mongodb "github.com/marketplace/storefront/internal/infrastructure/db/mongo"
	"github.com/marketplace/storefront/pkg/logger"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage marketplace accounts",
	}
	cmd.AddCommand(userCreateCmd(), userStatusCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var email, name, password, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withAccounts(cmd, func(ctx context.Context, accounts *service.CredentialService) error {
				user, err := accounts.CreateAccount(ctx, email, name, password, r)
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(user, "", "  ")
				if err != nil {
					return fmt.Errorf("encode user: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleClient), "Role (client, expert, admin)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func userStatusCmd() *cobra.Command {
	var email, status string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Activate, suspend or ban an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseStatus(status)
			if err != nil {
				return err
			}
			return withAccounts(cmd, func(ctx context.Context, accounts *service.CredentialService) error {
				if err := accounts.SetStatus(ctx, email, st); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, st)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&status, "status", "", "New status (active, suspended, banned)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func withAccounts(cmd *cobra.Command, fn func(context.Context, *service.CredentialService) error) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = mongodb.Disconnect(client) }()

	users := mongodb.NewUserRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return fn(ctx, service.NewCredentialService(users, cfg.JWTSecret, cfg.TokenTTL, logger.Get()))
}
