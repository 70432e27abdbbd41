package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prism-board/board"
	"prism-board/domain"
	"prism-board/session"
	"prism-board/tasklist"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s, err := a.session.Login(ctx, session.Credentials{Email: email, Password: password})
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), sessionJSON(a, s))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", s.UserID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.session.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

type sessionView struct {
	State     string     `json:"state"`
	UserID    string     `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func sessionJSON(a *app, s session.Session) sessionView {
	v := sessionView{State: s.State.String(), UserID: s.UserID}
	if exp, ok := a.session.ExpiresAt(); ok {
		v.ExpiresAt = &exp
	}
	return v
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s, err := a.session.Initialize(ctx)
				if err != nil {
					return err
				}
				v := sessionJSON(a, s)
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				if s.State != session.Authenticated {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (session expires %s)\n", v.UserID, v.ExpiresAt.Local().Format(time.RFC1123))
				return nil
			})
		},
	}
}

func newBoardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show tasks by status column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := board.New(a.tasks, a.logger)
				if err := c.Load(ctx); err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), toBoardJSON(c.Board()))
				}
				return writeBoard(cmd.OutOrStdout(), c.Board())
			})
		},
	}
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <task-id> <status>",
		Short: "Move a task to another column",
		Long:  "Move a task to another column. --index places it within the target column; by default it goes last. Reordering inside a column is not stored remotely.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := board.New(a.tasks, a.logger)
				if err := c.Load(ctx); err != nil {
					return err
				}
				m, err := planMove(c.Board(), args[0], to, index)
				if err != nil {
					return err
				}
				if err := c.Move(ctx, m); err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), toBoardJSON(c.Board()))
				}
				return writeBoard(cmd.OutOrStdout(), c.Board())
			})
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", -1, "position in the target column (default: last)")
	return cmd
}

// planMove turns "task id to column" into board coordinates. A negative
// index means the end of the target column.
func planMove(b domain.Board, id string, to domain.Status, index int) (board.Move, error) {
	from, fromIndex, ok := b.Locate(id)
	if !ok {
		return board.Move{}, &domain.ValidationError{Field: "taskId", Message: "no task " + strconv.Quote(id) + " on the board"}
	}
	if index < 0 {
		index = len(b[to])
		if from == to {
			index--
		}
	}
	return board.Move{TaskID: id, From: from, FromIndex: fromIndex, To: to, ToIndex: index}, nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(status, priority)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := tasklist.New(a.tasks, a.session, a.logger)
				if err := c.SetFilter(ctx, f); err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), c.Tasks())
				}
				return writeTasks(cmd.OutOrStdout(), c.Tasks())
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (todo, in_progress, completed)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "filter by priority (low, medium, high)")
	return cmd
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var description, status, priority, due string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := domain.TaskFields{Title: strings.Join(args, " "), Description: description}
			if status != "" {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				fields.Status = st
			}
			if priority != "" {
				pr, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				fields.Priority = pr
			}
			if due != "" {
				d, err := parseDue(due)
				if err != nil {
					return err
				}
				fields.DueDate = &d
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := tasklist.New(a.tasks, a.session, a.logger)
				t, err := c.Create(ctx, fields)
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&status, "status", "s", "", "initial status (default todo)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (default low)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	return cmd
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var title, description, status, priority, due string
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change fields of a task",
		Long:  "Change fields of a task. Only the flags given are sent; the rest of the task is left as it is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch domain.TaskPatch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("status") {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &st
			}
			if flags.Changed("priority") {
				pr, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				patch.Priority = &pr
			}
			if flags.Changed("due") {
				d, err := parseDue(due)
				if err != nil {
					return err
				}
				patch.DueDate = &d
			}
			if err := patch.Validate(); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := tasklist.New(a.tasks, a.session, a.logger)
				t, err := c.Update(ctx, args[0], patch)
				if err != nil {
					var remote *domain.RemoteError
					if errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound {
						return fmt.Errorf("task %s not found: %w", args[0], err)
					}
					return err
				}
				if opts.output == "json" {
					return writeJSON(cmd.OutOrStdout(), t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().StringVar(&due, "due", "", "new due date, YYYY-MM-DD")
	return cmd
}

func parseDue(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: "due", Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.authenticated(ctx); err != nil {
					return err
				}
				c := tasklist.New(a.tasks, a.session, a.logger)
				if err := c.Delete(ctx, args[0]); err != nil {
					var remote *domain.RemoteError
					if errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound {
						return fmt.Errorf("task %s not found: %w", args[0], err)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
