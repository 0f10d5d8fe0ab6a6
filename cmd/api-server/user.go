package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"procurement/db"
	"procurement/internal/auth"
	"procurement/models"
)

func userCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(
		userCreateCmd(envFile),
		userActiveCmd(envFile, "disable", "Block a user account", false),
		userActiveCmd(envFile, "enable", "Re-enable a blocked user account", true),
	)
	return cmd
}

// withStorage открывает БД для административной команды.
func withStorage(envFile string, fn func(ctx context.Context, store *db.Storage, log *zap.Logger) error) error {
	cfg, log, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer log.Sync()
	conn, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(context.Background(), db.NewStorage(conn), log)
}

func userCreateCmd(envFile *string) *cobra.Command {
	var (
		u        models.User
		role     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u.Role = models.Role(strings.ToUpper(role))
			if !models.ValidRole(u.Role) {
				return fmt.Errorf("unknown role %q", role)
			}
			if strings.TrimSpace(u.Email) == "" {
				return fmt.Errorf("--email is required")
			}
			// пользователь без пароля не сможет войти, но может быть приглашён
			if password != "" {
				hash, err := auth.HashPassword(password)
				if err != nil {
					return err
				}
				u.PasswordHash = hash
			}
			u.Active = true
			return withStorage(*envFile, func(ctx context.Context, store *db.Storage, log *zap.Logger) error {
				if err := store.CreateUser(ctx, &u); err != nil {
					return err
				}
				log.Info("user created", zap.Int64("id", u.ID), zap.String("email", u.Email), zap.String("role", string(u.Role)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Email, "email", "", "user e-mail (login)")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleRequester), "REQUESTER, BUYER, SUPPLIER or ADMIN")
	cmd.Flags().Int64Var(&u.OrganizationID, "org", 0, "organization id")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	return cmd
}

func userActiveCmd(envFile *string, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(*envFile, func(ctx context.Context, store *db.Storage, log *zap.Logger) error {
				if err := store.SetUserActive(ctx, args[0], active); err != nil {
					return err
				}
				log.Info("user updated", zap.String("email", args[0]), zap.Bool("active", active))
				return nil
			})
		},
	}
}
