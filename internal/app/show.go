package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"ramadan-companion/internal/storage"
)

// Show prints recent check runs and notifications from the audit log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show audit log")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	notes, err := store.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountRuns(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%d check runs recorded\n", total)
	return a.renderAudit(runs, notes)
}

func (a *App) renderAudit(runs []storage.CheckRun, notes []storage.NotificationRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no check runs found")
	} else {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Tick\tCoordinates\tMethod\tStatus\tMatched\tTook\tError")
		for _, run := range runs {
			coords := "-"
			if run.Latitude != nil && run.Longitude != nil {
				coords = run.Latitude.StringFixed(4) + "," + run.Longitude.StringFixed(4)
			}
			errMsg := ""
			if run.Error != nil {
				errMsg = sanitizeInline(*run.Error)
			}
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
				run.TickAt.Format(time.RFC3339),
				coords,
				run.Method,
				run.Status,
				strings.Join(run.Matched, ","),
				run.DurationMS,
				errMsg,
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if len(notes) == 0 {
		fmt.Fprintln(a.Out, "no notifications found")
		return nil
	}
	fmt.Fprintln(a.Out)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tPrayer\tAt\tSends\tError")
	for _, n := range notes {
		errMsg := ""
		if n.Error != nil {
			errMsg = sanitizeInline(*n.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
			n.Day.Format(time.DateOnly),
			n.Prayer,
			n.PrayerTime.Format(clock),
			n.Sends,
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
