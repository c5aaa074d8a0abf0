package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/calls"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/events"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/geocode"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/httpapi"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/metrics"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/notify"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/recordings"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/store"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/watch"
)

// App owns every stateful component and wires them together.
type App struct {
	cfg        config.Config
	store      *store.Store
	bus        *events.Bus
	calls      *calls.Registry
	recordings *recordings.Manager
	watcher    *watch.Watcher
	notifier   *notify.GroupMe
	handler    http.Handler
	archiving  bool
	archived   chan struct{}
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()

	reg := calls.NewRegistry(cfg.CallLogPath, bus)
	if cfg.ReconcileCallLog {
		records, err := calls.LoadLog(cfg.CallLogPath)
		if err != nil {
			log.Printf("call log reconcile: %v (kept %d records)", err, len(records))
		}
		reg.Preload(records)
		log.Printf("call log reconcile: next call_id=%d", len(records))
	}

	recs, err := recordings.NewManager(cfg.RecordingsDir, bus)
	if err != nil {
		st.Close()
		return nil, err
	}

	cache := geocode.NewCache(cfg.LocationCachePath, cfg.Geocoder.CacheCapacity, cfg.Geocoder.CacheRadiusKm)
	resolver := geocode.NewResolver(cache, geocode.NewClient(cfg.Geocoder))

	mux := http.NewServeMux()
	httpapi.NewRouter(cfg, reg, recs, resolver, st).Register(mux)

	return &App{
		cfg:        cfg,
		store:      st,
		bus:        bus,
		calls:      reg,
		recordings: recs,
		watcher:    watch.New(cfg, st),
		notifier:   notify.NewGroupMe(cfg.Notify),
		handler:    httpapi.Handler(mux),
		archived:   make(chan struct{}),
	}, nil
}

// Run starts the archiver, the watcher and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	a.startArchive(ctx, 256)
	if err := a.watcher.Backfill(ctx); err != nil {
		log.Printf("watch: backfill: %v", err)
	}
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) startArchive(ctx context.Context, buffer int) {
	a.archiving = true
	go a.archive(ctx, a.bus.Subscribe(buffer))
}

// archive mirrors lifecycle events into the SQLite archive until the bus
// closes or ctx ends. Failures are logged and counted only.
func (a *App) archive(ctx context.Context, sub <-chan events.Event) {
	defer close(a.archived)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := a.archiveEvent(ctx, ev); err != nil {
				metrics.IncArchiveFailures()
				log.Printf("archive: %s: %v", ev.Topic, err)
			}
			a.dispatch(ctx, ev)
		}
	}
}

func (a *App) archiveEvent(ctx context.Context, ev events.Event) error {
	switch p := ev.Payload.(type) {
	case calls.Recorded:
		payload, err := json.Marshal(p.Record)
		if err != nil {
			return err
		}
		_, err = a.store.InsertCall(ctx, &store.Call{
			CallID:        p.CallID,
			Timestamp:     p.Record.Timestamp,
			Phone:         textPtr(p.Record.Phone),
			Name:          textPtr(p.Record.Name),
			EmergencyType: textPtr(p.Record.EmergencyType),
			Latitude:      numberPtr(p.Record.Latitude),
			Longitude:     numberPtr(p.Record.Longitude),
			RecordingID:   textPtr(p.Record.RecordingID),
			PayloadJSON:   string(payload),
			ArchivedAt:    ev.At.UTC(),
		})
		return err
	case recordings.Stopped:
		return a.store.UpsertRecording(ctx, &store.Recording{
			RecordingID: p.Session.RecordingID,
			StartedAt:   p.Session.StartedAt,
			StoppedAt:   p.Session.StoppedAt,
			Duration:    p.Session.Duration,
			Path:        p.Path,
			IndexedAt:   ev.At.UTC(),
		})
	default:
		return nil
	}
}

// textPtr and numberPtr map loosely typed call fields onto archive columns;
// values that do not fit are archived as NULL and survive in payload_json.
func textPtr(v any) *string {
	s, ok := calls.Text(v)
	if !ok {
		return nil
	}
	return &s
}

func numberPtr(v any) *float64 {
	f, ok := calls.Number(v)
	if !ok {
		return nil
	}
	return &f
}

// dispatch forwards recorded calls to the GroupMe bot when one is configured.
func (a *App) dispatch(ctx context.Context, ev events.Event) {
	p, ok := ev.Payload.(calls.Recorded)
	if !ok || !a.notifier.Enabled() {
		return
	}
	if err := a.notifier.Send(ctx, notify.CallAlert(p.CallID, p.Record)); err != nil {
		metrics.IncNotifyFailures()
		log.Printf("notify: call %d: %v", p.CallID, err)
	}
}

// Close releases the bus, waits for the archiver to drain and closes the
// archive store.
func (a *App) Close() error {
	a.bus.Close()
	if a.archiving {
		<-a.archived
	}
	return a.store.Close()
}

func (a *App) Handler() http.Handler           { return a.handler }
func (a *App) Store() *store.Store             { return a.store }
func (a *App) Calls() *calls.Registry          { return a.calls }
func (a *App) Recordings() *recordings.Manager { return a.recordings }
