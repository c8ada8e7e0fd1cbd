package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	v1 "lacus-client/api/v1"
	"lacus-client/internal/artifact"
	"lacus-client/internal/storage"
	"lacus-client/lacus"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type fakeClient struct {
	mu       sync.Mutex
	settings []*v1.CaptureSettings
	err      error
	enqueued chan struct{}
}

func (f *fakeClient) Enqueue(ctx context.Context, opts ...lacus.EnqueueOption) (string, error) {
	f.mu.Lock()
	f.settings = append(f.settings, lacus.BuildSettings(opts...))
	f.mu.Unlock()
	if f.enqueued != nil {
		select {
		case f.enqueued <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "uuid", nil
}

func (f *fakeClient) WaitForCapture(ctx context.Context, uuid string, interval time.Duration) (*v1.CaptureResponse, error) {
	return &v1.CaptureResponse{Status: v1.CaptureStatusDone, Png: []byte("png")}, nil
}

func TestTrigger(t *testing.T) {
	client := &fakeClient{}
	entries := []Entry{
		{Name: "circl", Schedule: "0 0 1 1 *", URL: "https://www.circl.lu/", Priority: 3},
	}
	s, err := NewScheduler(client, entries, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Trigger(context.Background(), "circl")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("uuid", got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(client.settings)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("https://www.circl.lu/", client.settings[0].URL); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, *client.settings[0].Priority); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	statuses := s.Statuses()
	if diff := cmp.Diff(1, statuses[0].Runs); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("uuid", statuses[0].LastUUID); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !statuses[0].NextRun.After(statuses[0].LastRun) {
		t.Errorf("next run %s is not after last run %s", statuses[0].NextRun, statuses[0].LastRun)
	}

	if _, err := s.Trigger(context.Background(), "missing"); err == nil {
		t.Error("expected an error for an unknown schedule")
	}
}

func TestTriggerFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("lacus is down")}
	s, err := NewScheduler(client, []Entry{{Name: "circl", Schedule: "* * * * *", URL: "circl.lu"}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Trigger(context.Background(), "circl"); err == nil {
		t.Fatal("expected an error")
	}
	if diff := cmp.Diff("lacus is down", s.Statuses()[0].LastError); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestTriggerExport(t *testing.T) {
	directory := t.TempDir()
	store, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: directory})
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewScheduler(&fakeClient{}, []Entry{{Name: "circl", Schedule: "* * * * *", URL: "circl.lu", Export: true}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	s.Exporter = &artifact.Exporter{Storage: store}

	if _, err := s.Trigger(context.Background(), "circl"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(directory, "uuid", "screenshot.png"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("png", string(b)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestStartRunsDueEntries(t *testing.T) {
	client := &fakeClient{enqueued: make(chan struct{}, 1)}
	s, err := NewScheduler(client, []Entry{{Name: "circl", Schedule: "* * * * *", URL: "circl.lu"}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	select {
	case <-client.enqueued:
	case <-time.After(5 * time.Second):
		t.Fatal("entry was not run")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewSchedulerRejectsScheduleThatNeverFires(t *testing.T) {
	_, err := NewScheduler(&fakeClient{}, []Entry{{Name: "circl", Schedule: "0 0 30 2 *", URL: "circl.lu"}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if !errors.Is(err, ErrNeverFires) {
		t.Fatalf("expected ErrNeverFires, got %v", err)
	}
}

func TestStartWithoutNextRunDoesNotEnqueue(t *testing.T) {
	client := &fakeClient{}
	s, err := NewScheduler(client, []Entry{{Name: "circl", Schedule: "* * * * *", URL: "circl.lu"}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	s.statuses["circl"].NextRun = time.Time{}

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if diff := cmp.Diff(0, len(client.settings)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestStartCanceledDoesNotEnqueue(t *testing.T) {
	client := &fakeClient{}
	s, err := NewScheduler(client, []Entry{{Name: "circl", Schedule: "* * * * *", URL: "circl.lu"}}, logr.Discard(), sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	// Due now: the entry would run immediately without the cancellation.
	s.statuses["circl"].NextRun = s.now().Add(-1 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(0, len(client.settings)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
