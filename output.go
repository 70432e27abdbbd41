package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func dueLabel(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func writeTasks(w io.Writer, tasks []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, dueLabel(t.DueDate), t.Title)
	}
	return tw.Flush()
}

func writeBoard(w io.Writer, b domain.Board) error {
	for i, st := range domain.Statuses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s (%d)\n", st, len(b[st]))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for idx, t := range b[st] {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", idx, t.ID, t.Priority, t.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// boardJSON keeps the columns in display order.
type boardJSON struct {
	Todo       []domain.Task `json:"todo"`
	InProgress []domain.Task `json:"in_progress"`
	Completed  []domain.Task `json:"completed"`
}

func toBoardJSON(b domain.Board) boardJSON {
	return boardJSON{
		Todo:       b[domain.StatusTodo],
		InProgress: b[domain.StatusInProgress],
		Completed:  b[domain.StatusCompleted],
	}
}
