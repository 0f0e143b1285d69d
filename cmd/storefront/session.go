package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marketplace/storefront/internal/core/service"
	"github.com/marketplace/storefront/internal/infrastructure/config"
	"github.com/marketplace/storefront/pkg/logger"
)

var errPrivateBackend = errors.New("session commands need a shared store backend (file or redis)")

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or end the shared session as a separate execution context",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the session currently held in the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionStore(cmd, func(ctx context.Context, s *service.SessionStore) error {
				return printSession(cmd.OutOrStdout(), s)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Log out every execution context sharing the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionStore(cmd, func(ctx context.Context, s *service.SessionStore) error {
				s.Logout(ctx)
				return printSession(cmd.OutOrStdout(), s)
			})
		},
	})

	return cmd
}

// withSessionStore opens a short-lived execution context, resolves its
// session and hands it to fn.
func withSessionStore(cmd *cobra.Command, fn func(context.Context, *service.SessionStore) error) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Backend == config.BackendMemory {
		return errPrivateBackend
	}

	ctx := cmd.Context()
	store, release, err := openStore(ctx, cfg, logger.Component("durable_store"))
	if err != nil {
		return err
	}
	defer release()

	s := service.NewSessionStore(store, logger.Get(), service.WithSessionKeys(sessionKeys(cfg)))
	defer s.Close()
	s.Init(ctx)

	return fn(ctx, s)
}

func printSession(w io.Writer, s *service.SessionStore) error {
	snap := s.Snapshot()
	out := struct {
		State string `json:"state"`
		User  any    `json:"user,omitempty"`
	}{State: snap.State.String()}
	if snap.Authenticated() {
		out.User = snap.Session.User
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
