package schedule

import (
	"errors"
	"io"
	"os"
	"time"

	v1 "lacus-client/api/v1"
	"lacus-client/lacus"

	"github.com/robfig/cron/v3"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type File struct {
	Schedules []Entry `yaml:"schedules"`
}

// Entry is a URL captured again every time Schedule fires.
type Entry struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	URL      string `yaml:"url"`

	Browser             v1.Browser        `yaml:"browser"`
	DeviceName          string            `yaml:"device_name"`
	UserAgent           string            `yaml:"user_agent"`
	Proxy               string            `yaml:"proxy"`
	Headers             map[string]string `yaml:"headers"`
	Depth               int               `yaml:"depth"`
	Priority            int               `yaml:"priority"`
	GeneralTimeoutInSec *int              `yaml:"general_timeout_in_sec"`
	WithFavicon         bool              `yaml:"with_favicon"`
	// Force asks Lacus for a new capture even when a recent one exists.
	Force bool `yaml:"force"`

	// Export waits for the capture and stores its artifacts.
	Export bool `yaml:"export"`
}

func (e Entry) options() []lacus.EnqueueOption {
	opts := []lacus.EnqueueOption{
		lacus.WithURL(e.URL),
		lacus.WithBrowser(e.Browser),
		lacus.WithDeviceName(e.DeviceName),
		lacus.WithUserAgent(e.UserAgent),
		lacus.WithProxy(e.Proxy),
		lacus.WithHeaders(e.Headers),
		lacus.WithDepth(e.Depth),
		lacus.WithPriority(e.Priority),
		lacus.WithFavicon(e.WithFavicon),
		lacus.WithForce(e.Force),
	}
	if e.GeneralTimeoutInSec != nil {
		opts = append(opts, lacus.WithGeneralTimeout(*e.GeneralTimeoutInSec))
	}
	return opts
}

// Parse reads schedules from YAML, rejecting unknown keys, duplicate names and
// invalid cron expressions.
func Parse(r io.Reader) ([]Entry, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var f File
	if err := decoder.Decode(&f); err != nil && err != io.EOF {
		return nil, xerrors.Errorf("failed to decode schedules: %w", err)
	}

	now := time.Now()
	seen := make(map[string]struct{}, len(f.Schedules))
	for i, entry := range f.Schedules {
		if entry.Name == "" {
			return nil, xerrors.Errorf("schedules[%d]: name is required", i)
		}
		if _, ok := seen[entry.Name]; ok {
			return nil, xerrors.Errorf("schedules[%d]: duplicate name %s", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if entry.URL == "" {
			return nil, xerrors.Errorf("schedules[%d]: url is required", i)
		}
		if _, err := parseSchedule(entry.Schedule, now); err != nil {
			return nil, xerrors.Errorf("schedules[%d]: invalid schedule %q: %w", i, entry.Schedule, err)
		}
	}
	return f.Schedules, nil
}

var ErrNeverFires = errors.New("schedule never fires")

// parseSchedule parses a cron expression and rejects the ones without any
// activation, such as February 30th.
func parseSchedule(expression string, now time.Time) (cron.Schedule, error) {
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	if schedule.Next(now).IsZero() {
		return nil, ErrNeverFires
	}
	return schedule, nil
}

func ParseFile(name string) ([]Entry, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	return Parse(f)
}

// nextRun is the first activation after the last run. Entries that never ran
// look back one minute so an activation happening right now is not missed.
func nextRun(schedule cron.Schedule, lastRun time.Time, now time.Time) time.Time {
	if lastRun.IsZero() {
		return schedule.Next(now.Add(-1 * time.Minute))
	}
	return schedule.Next(lastRun)
}
