// Package schedule enqueues captures on cron schedules.
package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	v1 "lacus-client/api/v1"
	"lacus-client/internal/artifact"
	"lacus-client/lacus"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// Client is the part of *lacus.Client the scheduler needs.
type Client interface {
	Enqueue(ctx context.Context, opts ...lacus.EnqueueOption) (string, error)
	WaitForCapture(ctx context.Context, uuid string, interval time.Duration) (*v1.CaptureResponse, error)
}

// Status is the state of one entry, as served on /schedules.
type Status struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	URL       string    `json:"url"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastUUID  string    `json:"last_uuid,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

type Scheduler struct {
	Client   Client
	Exporter *artifact.Exporter
	Log      logr.Logger
	// PollInterval is how often an exported capture is polled until done.
	PollInterval time.Duration

	entries   []Entry
	schedules map[string]cron.Schedule
	now       func() time.Time

	mu       sync.Mutex
	statuses map[string]*Status

	enqueuedTotal metric.Int64Counter
}

func NewScheduler(client Client, entries []Entry, log logr.Logger, meterProvider metric.MeterProvider) (*Scheduler, error) {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	enqueuedTotal, err := meterProvider.Meter("lacus-scheduler").Int64Counter(
		"lacus_scheduler_runs_total",
		metric.WithDescription("Scheduled captures by entry and result"),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}

	s := &Scheduler{
		Client:        client,
		Log:           log,
		PollInterval:  5 * time.Second,
		entries:       entries,
		schedules:     make(map[string]cron.Schedule, len(entries)),
		now:           time.Now,
		statuses:      make(map[string]*Status, len(entries)),
		enqueuedTotal: enqueuedTotal,
	}
	for _, entry := range entries {
		schedule, err := parseSchedule(entry.Schedule, s.now())
		if err != nil {
			return nil, xerrors.Errorf("invalid schedule for %s: %w", entry.Name, err)
		}
		s.schedules[entry.Name] = schedule
		s.statuses[entry.Name] = &Status{
			Name:     entry.Name,
			Schedule: entry.Schedule,
			URL:      entry.URL,
			NextRun:  nextRun(schedule, time.Time{}, s.now()),
		}
	}
	return s, nil
}

// Start runs every entry until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, entry := range s.entries {
		entry := entry
		eg.Go(func() error {
			s.loop(ctx, entry)
			return nil
		})
	}
	return eg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, entry Entry) {
	log := s.Log.WithValues("name", entry.Name)
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		next := s.statuses[entry.Name].NextRun
		s.mu.Unlock()
		if next.IsZero() {
			log.Error(ErrNeverFires, "stopping entry")
			return
		}

		wait := next.Sub(s.now())
		if wait > 0 {
			log.V(1).Info("waiting for next run", "nextRun", next)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if _, err := s.run(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(err, "scheduled capture failed")
		}
	}
}

// Trigger runs an entry now, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) (string, error) {
	for _, entry := range s.entries {
		if entry.Name == name {
			return s.run(ctx, entry)
		}
	}
	return "", xerrors.Errorf("%s: %w", name, ErrUnknownSchedule)
}

func (s *Scheduler) run(ctx context.Context, entry Entry) (string, error) {
	log := s.Log.WithValues("name", entry.Name, "url", entry.URL)

	uuid, err := s.Client.Enqueue(ctx, entry.options()...)
	if err == nil {
		log.Info("capture enqueued", "uuid", uuid)
		if entry.Export && s.Exporter != nil {
			err = s.export(ctx, uuid)
		}
	}

	now := s.now()
	s.mu.Lock()
	status := s.statuses[entry.Name]
	status.LastRun = now
	status.NextRun = nextRun(s.schedules[entry.Name], now, now)
	status.Runs++
	status.LastUUID = uuid
	status.LastError = ""
	if err != nil {
		status.LastError = err.Error()
	}
	s.mu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
	}
	s.enqueuedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Key("name").String(entry.Name),
		attribute.Key("result").String(result),
	))

	return uuid, err
}

func (s *Scheduler) export(ctx context.Context, uuid string) error {
	capture, err := s.Client.WaitForCapture(ctx, uuid, s.PollInterval)
	if err != nil {
		return xerrors.Errorf("failed to wait for capture %s: %w", uuid, err)
	}
	manifest, err := s.Exporter.Export(ctx, uuid, capture)
	if err != nil {
		return xerrors.Errorf("failed to export capture %s: %w", uuid, err)
	}
	s.Log.Info("capture exported", "uuid", uuid, "screenshot", manifest.Screenshot)
	return nil
}

// Statuses returns a copy of every entry state, sorted by name.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]Status, 0, len(s.statuses))
	for _, status := range s.statuses {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}
