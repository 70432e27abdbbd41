package main

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-board/domain"
	"prism-board/mockapi"
)

func newServeMockCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var users []string
	var seedTasks bool
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run an in-memory task service for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if addr == "" {
				addr = cfg.Mock.Addr
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())
			if !cfg.Debug {
				logger.SetLevel(log.InfoLevel)
			}

			store := mockapi.NewStore()
			for _, u := range users {
				email, password, ok := strings.Cut(u, ":")
				if !ok || email == "" || password == "" {
					return &domain.ValidationError{Field: "user", Message: "expected email:password"}
				}
				id, err := store.AddUser(email, "", password)
				if err != nil {
					return err
				}
				if seedTasks {
					seedDemoTasks(store, id)
				}
				logger.WithFields(log.Fields{"email": email, "user_id": id}).Info("mockapi.user.seeded")
			}

			srv := mockapi.New(store, mockapi.NewAuth([]byte(cfg.Mock.Secret), cfg.Mock.TokenTTL), logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default MOCK_ADDR)")
	cmd.Flags().StringArrayVarP(&users, "user", "u", []string{"demo@example.com:password"}, "seed account as email:password, repeatable")
	cmd.Flags().BoolVar(&seedTasks, "seed-tasks", true, "give every seeded account a few sample tasks")
	return cmd
}

func seedDemoTasks(store *mockapi.Store, owner string) {
	due := time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour)
	store.Seed(
		domain.Task{Title: "Write project brief", Status: domain.StatusTodo, Priority: domain.PriorityHigh, DueDate: &due, OwnerID: owner},
		domain.Task{Title: "Review pull requests", Status: domain.StatusTodo, Priority: domain.PriorityMedium, OwnerID: owner},
		domain.Task{Title: "Update dependencies", Status: domain.StatusInProgress, Priority: domain.PriorityLow, OwnerID: owner},
		domain.Task{Title: "Set up CI", Status: domain.StatusCompleted, Priority: domain.PriorityMedium, OwnerID: owner},
	)
}
