package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"ramadan-companion/internal/prayer"
	"ramadan-companion/internal/service"
)

const clock = "15:04"

// Check runs the periodic prayer check once against the configured sinks.
func (a *App) Check(ctx context.Context, at *time.Time) (service.Result, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return service.Result{}, err
	}
	defer rt.Close()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.Result{}, err
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return service.Result{}, err
	}
	defer closeNotifier()

	when := a.now()
	if at != nil {
		when = *at
	}
	res := a.newCheck(rt, notifier, store, nil).Evaluate(ctx, when)

	fmt.Fprintf(a.Out, "run %s at %s: %s\n", res.RunID, res.At.Format(time.RFC3339), res.Outcome)
	if res.Err != nil {
		fmt.Fprintf(a.Out, "  error: %s\n", sanitizeInline(res.Err.Error()))
	}
	for _, n := range res.Sent {
		fmt.Fprintf(a.Out, "  notified #%d %s: %s\n", n.ID, n.Title, n.Body)
	}
	for _, n := range res.Unsent {
		reason := "delivery failed"
		if res.Outcome == service.OutcomeNoSink {
			reason = "no notification sink configured"
		}
		fmt.Fprintf(a.Out, "  not delivered #%d %s: %s\n", n.ID, n.Prayer, reason)
	}
	return res, nil
}

// Times prints the prayer times for one day at the cached or fallback location.
func (a *App) Times(ctx context.Context, date *time.Time) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	at := a.now()
	if date != nil {
		at = *date
	}
	coords, fallback := rt.location.ForDisplay(ctx, a.fallback(), a.Config.Location.ZeroLatitudeUnset)
	card, err := rt.planner.Today(coords, at)
	if err != nil {
		return err
	}

	header := fmt.Sprintf("%s  %s  method=%s madhab=%s", card.Date.Format(time.DateOnly), coords, card.Method, card.Times.Madhab)
	if fallback {
		header += "  (fallback location)"
	}
	fmt.Fprintln(a.Out, header)
	if card.RamadanDay > 0 {
		fmt.Fprintf(a.Out, "Ramadan day %d\n", card.RamadanDay)
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	for _, e := range card.Times.Entries(prayer.Order) {
		mark := ""
		if card.Next != nil && card.Next.Prayer == e.Prayer {
			mark = "<- next"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", e.Prayer, e.Time.Format(clock), mark)
	}
	fmt.Fprintf(writer, "Sehri ends\t%s\t\n", card.SehriEnd.Format(clock))
	fmt.Fprintf(writer, "Iftar\t%s\t\n", card.Iftar.Format(clock))
	return writer.Flush()
}

// Schedule prints the month-long Ramadan schedule as a table or JSON.
func (a *App) Schedule(ctx context.Context, asJSON bool) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	coords, fallback := rt.location.ForDisplay(ctx, a.fallback(), a.Config.Location.ZeroLatitudeUnset)
	sched, err := rt.planner.Schedule(coords, a.now())
	if err != nil {
		return err
	}
	sched.Fallback = fallback

	if asJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(sched)
	}

	fmt.Fprintf(a.Out, "Ramadan %d (%s) from %s at %s, method=%s\n",
		sched.HijriYear, sched.Calendar, sched.Start.Format(time.DateOnly), coords, sched.Method)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tDate\tHijri\tSehri\tFajr\tDhuhr\tAsr\tIftar\tIsha\t")
	for _, d := range sched.Days {
		today := ""
		if d.IsToday {
			today = "*"
		}
		fmt.Fprintf(writer, "%d%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			d.Number, today,
			d.Date.Format(time.DateOnly),
			d.Hijri,
			d.SehriEnd.Format(clock),
			d.Fajr.Format(clock),
			d.Dhuhr.Format(clock),
			d.Asr.Format(clock),
			d.Iftar.Format(clock),
			d.Isha.Format(clock),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if d, ok := sched.Today(); ok {
		fmt.Fprintf(a.Out, "today is day %d: sehri ends %s, iftar %s\n", d.Number, d.SehriEnd.Format(clock), d.Iftar.Format(clock))
	}
	return nil
}

// LocateOptions select between a provider refresh and a manual override.
type LocateOptions struct {
	Latitude  *float64
	Longitude *float64
	Clear     bool
}

// Locate refreshes or overrides the cached location and prints the result.
func (a *App) Locate(ctx context.Context, opts LocateOptions) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch {
	case opts.Clear:
		if err := rt.cache.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "location cleared")
		return nil
	case opts.Latitude != nil || opts.Longitude != nil:
		if opts.Latitude == nil || opts.Longitude == nil {
			return fmt.Errorf("both --lat and --lon are required")
		}
		coords, err := rt.location.Set(ctx, *opts.Latitude, *opts.Longitude)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "location set to %s (method %s)\n", coords, prayer.SelectMethod(coords.Latitude, coords.Longitude))
		return nil
	default:
		coords, err := rt.location.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "location refreshed to %s (method %s)\n", coords, prayer.SelectMethod(coords.Latitude, coords.Longitude))
		return nil
	}
}

// Tally runs one tally action: show, inc or reset.
func (a *App) Tally(ctx context.Context, action string) (int64, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return 0, err
	}
	defer rt.Close()

	var n int64
	switch strings.ToLower(action) {
	case "", "show":
		n, err = rt.tally.Get(ctx)
	case "inc", "increment":
		n, err = rt.tally.Increment(ctx)
	case "reset":
		err = rt.tally.Reset(ctx)
	default:
		return 0, fmt.Errorf("unknown tally action %q", action)
	}
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(a.Out, "%d\n", n)
	return n, nil
}
