package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ramadan-companion/internal/ramadan"
)

// Export renders the Ramadan schedule as CSV and/or PNG. With no path given,
// both files are written under export.dir.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
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

	if opts.CSVPath == "" && opts.PNGPath == "" {
		base := filepath.Join(a.Config.Export.Dir, fmt.Sprintf("ramadan-%d", sched.HijriYear))
		opts.CSVPath = base + ".csv"
		opts.PNGPath = base + ".png"
	}

	a.Logger.Info().Int("days", len(sched.Days)).Str("coords", coords.String()).Bool("fallback", fallback).Msg("exporting schedule")

	if opts.CSVPath != "" {
		if err := writeScheduleCSV(opts.CSVPath, sched); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "wrote %s\n", opts.CSVPath)
	}

	if opts.PNGPath != "" {
		if err := writeSchedulePNG(opts.PNGPath, sched, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "wrote %s\n", opts.PNGPath)
	}

	return nil
}

func writeScheduleCSV(path string, sched ramadan.Schedule) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"day", "date", "hijri", "sehri_end", "fajr", "sunrise", "dhuhr", "asr", "iftar", "isha", "method"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, d := range sched.Days {
		record := []string{
			fmt.Sprint(d.Number),
			d.Date.Format(time.DateOnly),
			d.Hijri.String(),
			d.SehriEnd.Format(clock),
			d.Fajr.Format(clock),
			d.Sunrise.Format(clock),
			d.Dhuhr.Format(clock),
			d.Asr.Format(clock),
			d.Iftar.Format(clock),
			d.Isha.Format(clock),
			string(d.Method),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// hourOfDay maps a wall-clock time to fractional hours in its own zone.
func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func writeSchedulePNG(path string, sched ramadan.Schedule, width, height int) error {
	if len(sched.Days) == 0 {
		return fmt.Errorf("schedule is empty")
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 640
	}

	x := make([]time.Time, len(sched.Days))
	sehri := make([]float64, len(sched.Days))
	iftar := make([]float64, len(sched.Days))
	for i, d := range sched.Days {
		x[i] = d.Date
		sehri[i] = hourOfDay(d.SehriEnd)
		iftar[i] = hourOfDay(d.Iftar)
	}

	clockFormatter := func(v interface{}) string {
		f, ok := v.(float64)
		if !ok {
			return ""
		}
		minutes := int(f*60 + 0.5)
		return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Ramadan %d", sched.HijriYear),
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Sehri ends",
			ValueFormatter: clockFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Iftar",
			ValueFormatter: clockFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Sehri ends",
				XValues: x,
				YValues: sehri,
			},
			chart.TimeSeries{
				Name:    "Iftar",
				XValues: x,
				YValues: iftar,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
