// Package firehose polls the live event feed and keeps the latest
// snapshot in memory.  Each poll replaces the previous feature set
// wholesale; nothing is diffed.  A command channel owns the state, the
// ticker never blocks on a slow fetch, and overlapping polls coalesce
// by skipping the tick while one is outstanding.
package firehose

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"world-pulse-map/pkg/declutter"
	"world-pulse-map/pkg/eventbus"
)

// Store persists raw feed payloads so a restart can serve the last
// known events before the first poll lands.
type Store interface {
	ReplaceLiveSnapshot(ctx context.Context, payload []byte, fetchedAt time.Time) error
	GetLiveSnapshot(ctx context.Context) ([]byte, time.Time, bool, error)
}

type feedState struct {
	features  []*geojson.Feature
	region    orb.Geometry
	level     int
	fetchedAt time.Time
	inflight  bool
}

// Poller drives the feed.  Safe for concurrent use.
type Poller struct {
	ops      chan func(*feedState)
	url      string
	interval time.Duration
	client   *http.Client
	store    Store
	bus      *eventbus.Bus
	logf     func(format string, args ...any)
}

// NewPoller builds a poller.  store and bus may be nil.
func NewPoller(url string, interval time.Duration, store Store, bus *eventbus.Bus, logf func(string, ...any)) *Poller {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	p := &Poller{
		ops:      make(chan func(*feedState)),
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 45 * time.Second},
		store:    store,
		bus:      bus,
		logf:     logf,
	}
	go func() {
		s := &feedState{}
		for op := range p.ops {
			op(s)
		}
	}()
	return p
}

// Run polls until ctx is cancelled.  The first poll happens
// immediately; before it completes the store's last snapshot is
// served, so the map never starts empty after a restart.
func (p *Poller) Run(ctx context.Context) {
	p.restore(ctx)
	if p.url == "" {
		<-ctx.Done()
		return
	}

	var regions <-chan eventbus.RegionChange
	if p.bus != nil {
		regions = p.bus.SubscribeRegion(ctx, 4)
	}

	p.pollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case rc, ok := <-regions:
			if !ok {
				regions = nil
				continue
			}
			p.ops <- func(s *feedState) {
				s.region = rc.Geometry
				s.level = rc.Level
			}
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) restore(ctx context.Context) {
	if p.store == nil {
		return
	}
	payload, fetchedAt, ok, err := p.store.GetLiveSnapshot(ctx)
	if err != nil {
		p.logf("firehose: restore snapshot: %v", err)
		return
	}
	if !ok {
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		p.logf("firehose: stored snapshot decode: %v", err)
		return
	}
	p.ops <- func(s *feedState) {
		s.features = fc.Features
		s.fetchedAt = fetchedAt
	}
}

// PollNow fetches synchronously and replaces the snapshot.  Startup
// uses it so the first page render already has events.
func (p *Poller) PollNow(ctx context.Context) error {
	payload, fc, err := p.download(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	done := make(chan struct{})
	p.ops <- func(s *feedState) {
		s.features = fc.Features
		s.fetchedAt = now
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.store != nil {
		if err := p.store.ReplaceLiveSnapshot(ctx, payload, now); err != nil {
			p.logf("firehose: persist snapshot: %v", err)
		}
	}
	return nil
}

// pollOnce starts a fetch unless one is already running.
func (p *Poller) pollOnce(ctx context.Context) {
	p.ops <- func(s *feedState) {
		if s.inflight {
			return
		}
		s.inflight = true
		go p.fetch(ctx)
	}
}

func (p *Poller) fetch(ctx context.Context) {
	payload, fc, err := p.download(ctx)
	now := time.Now().UTC()
	p.ops <- func(s *feedState) {
		s.inflight = false
		if err != nil {
			p.logf("firehose: poll: %v", err)
			return
		}
		s.features = fc.Features
		s.fetchedAt = now
	}
	if err == nil && p.store != nil {
		if err := p.store.ReplaceLiveSnapshot(ctx, payload, now); err != nil {
			p.logf("firehose: persist snapshot: %v", err)
		}
	}
}

func (p *Poller) download(ctx context.Context) ([]byte, *geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", "world-pulse-map live feed poller")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("live feed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("live feed http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("live feed read: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("live feed decode: %w", err)
	}
	return payload, fc, nil
}

// Snapshot runs the declutter filter over the current events, scoped
// to the active region.  mode and categories come from the caller's
// query; the region comes from navigation.
func (p *Poller) Snapshot(ctx context.Context, mode declutter.Mode, categories []string) (declutter.Result, time.Time) {
	type reply struct {
		result    declutter.Result
		fetchedAt time.Time
	}
	replies := make(chan reply, 1)
	p.ops <- func(s *feedState) {
		result := declutter.Filter(s.features, declutter.Options{
			Mode:             mode,
			ActiveCategories: categories,
			Region:           s.region,
		})
		replies <- reply{result: result, fetchedAt: s.fetchedAt}
	}
	select {
	case r := <-replies:
		return r.result, r.fetchedAt
	case <-ctx.Done():
		return declutter.Result{}, time.Time{}
	}
}

// WaitForLiveData retries the feed until it answers or attempts run
// out.  Used once at startup so the server does not advertise a live
// layer it cannot back.
func (p *Poller) WaitForLiveData(ctx context.Context, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, _, err := p.download(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logf("firehose: startup attempt %d/%d: %v", i+1, attempts, err)
	}
	return fmt.Errorf("live feed unavailable after %d attempts: %w", attempts, lastErr)
}

// WaitForBackend retries a plain GET against url until it returns a
// non-error status.  Shared startup helper for auxiliary services.
func WaitForBackend(ctx context.Context, url string, attempts int, delay time.Duration, logf func(string, ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	client := &http.Client{Timeout: 15 * time.Second}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode < 400 {
				return nil
			}
			err = fmt.Errorf("backend http %d", resp.StatusCode)
		}
		lastErr = err
		logf("backend wait %s attempt %d/%d: %v", url, i+1, attempts, err)
	}
	return fmt.Errorf("backend %s unavailable after %d attempts: %w", url, attempts, lastErr)
}
