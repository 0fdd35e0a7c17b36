package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/langchou/ovmsgazer/internal/models"
)

type fakeTelemetryStore struct {
	mu      sync.Mutex
	inserts []*models.Telemetry
	fail    bool
	block   chan struct{}
}

func (f *fakeTelemetryStore) Insert(ctx context.Context, t *models.Telemetry) error {
	if f.block != nil {
		<-f.block
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("database unavailable")
	}
	f.inserts = append(f.inserts, t)
	return nil
}

func (f *fakeTelemetryStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts)
}

func (f *fakeTelemetryStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type fakeDriveStore struct {
	nextID    int64
	created   []*models.Drive
	completed []models.Drive
	deleted   []int64
}

func (f *fakeDriveStore) Create(_ context.Context, d *models.Drive) error {
	f.nextID++
	d.ID = f.nextID
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDriveStore) Complete(_ context.Context, d *models.Drive) error {
	f.completed = append(f.completed, *d)
	return nil
}

func (f *fakeDriveStore) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChargeStore struct {
	nextID    int64
	created   []models.Charge
	progress  int
	completed []models.Charge
	deleted   []int64
}

func (f *fakeChargeStore) Create(_ context.Context, c *models.Charge) error {
	f.nextID++
	c.ID = f.nextID
	f.created = append(f.created, *c)
	return nil
}

func (f *fakeChargeStore) UpdateProgress(context.Context, *models.Charge) error {
	f.progress++
	return nil
}

func (f *fakeChargeStore) Complete(_ context.Context, c *models.Charge) error {
	f.completed = append(f.completed, *c)
	return nil
}

func (f *fakeChargeStore) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeGeocoder struct {
	label string
	err   error
	calls int
}

func (f *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	f.calls++
	return f.label, f.err
}

type fakeTransport struct {
	mu      sync.Mutex
	started bool
	stopped bool
	probes  int
}

func (f *fakeTransport) Start(context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTransport) RequestStatus(context.Context) error {
	f.mu.Lock()
	f.probes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// clock 可控时钟
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
