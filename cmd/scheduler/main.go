package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/service/schedule"
)

var opts struct {
	Config string `short:"c" long:"config" env:"CONFIG_FILE" default:"configs/config.yaml" description:"path to configuration file"`
}

type planCmd struct {
	Date    string        `long:"date" description:"day to schedule (YYYY-MM-DD); defaults to tomorrow"`
	Start   string        `long:"start" default:"09:00" description:"first slot (HH:MM) in the calling-hours time zone"`
	Spacing time.Duration `long:"spacing" description:"gap between consecutive leads; defaults to schedule.spacing"`
	Count   int           `long:"count" description:"number of leads; defaults to schedule.count"`
	Apply   bool          `long:"execute" description:"write the plan; without it the plan is only printed"`
}

type rescheduleCmd struct {
	Gap      time.Duration `long:"gap" description:"offset after the latest future slot; defaults to schedule.overdue_gap"`
	Interval time.Duration `long:"interval" description:"gap between rescheduled leads; defaults to schedule.overdue_interval"`
	Apply    bool          `long:"execute" description:"write the new times; without it they are only printed"`
}

func main() {
	parser, err := newParser()
	if err != nil {
		log.Fatal(err)
	}
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}

func newParser() (*flags.Parser, error) {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.AddCommand("plan", "Schedule never-called leads", "Assigns Programado and staggered fecha_planificada to the oldest never-called leads.", &planCmd{}); err != nil {
		return nil, err
	}
	if _, err := parser.AddCommand("reschedule", "Re-stagger overdue leads", "Moves Programado leads whose time has passed behind the latest future slot.", &rescheduleCmd{}); err != nil {
		return nil, err
	}
	return parser, nil
}

func withContainer(fn func(ctx context.Context, c *app.Container) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	container, err := app.Build(ctx, opts.Config)
	if err != nil {
		return fmt.Errorf("failed to bootstrap application: %w", err)
	}
	defer container.Close(context.Background())
	return fn(ctx, container)
}

// Execute implements flags.Commander.
func (c *planCmd) Execute([]string) error {
	return withContainer(func(ctx context.Context, container *app.Container) error {
		cfg := container.Config
		start, err := planStart(c.Date, c.Start, cfg.Dialer.CallingHours.TimeZone, time.Now())
		if err != nil {
			return err
		}
		spacing := c.Spacing
		if spacing <= 0 {
			spacing = cfg.Schedule.Spacing
		}
		count := c.Count
		if count <= 0 {
			count = cfg.Schedule.Count
		}

		plan, err := container.Services().Schedule.Plan(ctx, schedule.PlanInput{
			Start:   start,
			Spacing: spacing,
			Count:   count,
			DryRun:  !c.Apply,
		})
		if err != nil {
			return err
		}
		logAssignments(container, plan, !c.Apply)
		return nil
	})
}

// Execute implements flags.Commander.
func (c *rescheduleCmd) Execute([]string) error {
	return withContainer(func(ctx context.Context, container *app.Container) error {
		cfg := container.Config
		gap := c.Gap
		if gap <= 0 {
			gap = cfg.Schedule.OverdueGap
		}
		interval := c.Interval
		if interval <= 0 {
			interval = cfg.Schedule.OverdueInterval
		}

		plan, err := container.Services().Schedule.RescheduleOverdue(ctx, schedule.RescheduleInput{
			Gap:      gap,
			Interval: interval,
			DryRun:   !c.Apply,
		})
		if err != nil {
			return err
		}
		logAssignments(container, plan, !c.Apply)
		return nil
	})
}

func logAssignments(container *app.Container, plan []schedule.Assignment, dryRun bool) {
	for _, a := range plan {
		container.Logger.Info("assignment",
			zap.String("lead", a.Lead.Name),
			zap.String("phone", a.Lead.Phone),
			zap.Time("at", a.At))
	}
	container.Logger.Info("scheduling finished", zap.Int("leads", len(plan)), zap.Bool("dry_run", dryRun))
}

// planStart resolves --date and --start in the given zone. An empty date means
// the day after now.
func planStart(date, hhmm, zone string, now time.Time) (time.Time, error) {
	loc := time.UTC
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("time zone %q: %w", zone, err)
		}
		loc = l
	}
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("start %q: %w", hhmm, err)
	}

	day := now.In(loc).AddDate(0, 0, 1)
	if date != "" {
		day, err = time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", date, err)
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
