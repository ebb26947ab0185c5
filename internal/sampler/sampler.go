// Package sampler runs sampling cycles against one host and turns raw kernel
// counters into Snapshots.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"kstat-sampler/internal/metrics"
	"kstat-sampler/internal/registry"
	"kstat-sampler/internal/source"
	"kstat-sampler/internal/state"
)

// ErrCycleFailed is returned when a cycle produced nothing usable: a read
// deadline expired, the context ended, or every read failed.
var ErrCycleFailed = errors.New("sampler: cycle failed")

const DefaultReadTimeout = 10 * time.Second

type Option func(*Sampler)

// WithReadTimeout bounds every individual read. Zero disables the bound.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Sampler) { s.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithStaleAfter drops store entries not refreshed for n successful cycles.
// Zero keeps them forever.
func WithStaleAfter(n uint64) Option {
	return func(s *Sampler) { s.staleAfter = n }
}

// Sampler owns the state for one monitored host. Cycles are serialised.
type Sampler struct {
	host     string
	src      source.Source
	registry *registry.Registry
	store    *state.Store
	log      *slog.Logger

	timeout    time.Duration
	staleAfter uint64
	now        func() time.Time

	mu     sync.Mutex
	cycle  uint64
	lastAt time.Time
	// familyOK holds the last committed cycle in which each family was read.
	familyOK map[string]uint64
}

func New(host string, src source.Source, logger *slog.Logger, opts ...Option) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{
		host:     host,
		src:      src,
		registry: registry.New(src),
		store:    state.NewStore(),
		log:      logger,
		timeout:  DefaultReadTimeout,
		now:      time.Now,
		familyOK: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Host() string { return s.host }

// Store exposes the sampler's state for inspection.
func (s *Sampler) Store() *state.Store { return s.store }

// Sample runs one full cycle. The first cycle only seeds the store, so its
// rate fields are 0. A failed cycle leaves the store untouched.
func (s *Sampler) Sample(ctx context.Context) (metrics.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &cycle{
		Sampler: s,
		ctx:     ctx,
		num:     s.cycle + 1,
		at:      s.now(),
		staged:  make(map[state.Key]state.Entry),
		read:    make(map[string]bool),
	}
	snap := c.run()

	if c.fatal != nil {
		s.log.Warn("cycle failed", "host", s.host, "cycle", c.num, "err", c.fatal)
		return metrics.Snapshot{}, fmt.Errorf("%w: %w", ErrCycleFailed, c.fatal)
	}
	if c.calls > 0 && c.failed == c.calls {
		s.log.Warn("cycle failed", "host", s.host, "cycle", c.num, "errors", len(snap.Errors))
		return metrics.Snapshot{}, fmt.Errorf("%w: all %d reads failed", ErrCycleFailed, c.calls)
	}

	s.commit(c)
	return snap, nil
}

// Measure runs two cycles gap apart and returns the second, so that every
// rate field is meaningful.
func (s *Sampler) Measure(ctx context.Context, gap time.Duration) (metrics.Snapshot, error) {
	if _, err := s.Sample(ctx); err != nil {
		return metrics.Snapshot{}, err
	}
	timer := time.NewTimer(gap)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return metrics.Snapshot{}, fmt.Errorf("%w: %w", ErrCycleFailed, ctx.Err())
	case <-timer.C:
	}
	return s.Sample(ctx)
}

func (s *Sampler) commit(c *cycle) {
	for k, e := range c.staged {
		s.store.Put(k, e)
	}
	for family := range c.read {
		s.familyOK[family] = c.num
	}
	s.cycle = c.num
	s.lastAt = c.at

	if s.staleAfter > 0 && c.num > s.staleAfter {
		if n := s.store.Prune(c.num - s.staleAfter); n > 0 {
			s.log.Debug("pruned stale keys", "host", s.host, "count", n)
		}
	}
}

// cycle is the scratch state of one Sample call. Nothing reaches the store
// until the cycle is committed.
type cycle struct {
	*Sampler
	ctx    context.Context
	num    uint64
	at     time.Time
	staged map[state.Key]state.Entry
	read   map[string]bool

	calls  int
	failed int
	fatal  error
}

// call runs fn under the per-read timeout. It reports false when fn failed or
// the cycle is already lost. Timeouts and cancellation abort the cycle.
func (c *cycle) call(fn func(ctx context.Context) error) bool {
	if c.fatal != nil {
		return false
	}
	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
	}
	c.calls++
	err := fn(ctx)
	if err == nil {
		return true
	}
	c.failed++
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		c.fatal = err
	}
	return false
}

func (c *cycle) fail(snap *metrics.Snapshot, err error, families ...string) {
	if c.fatal != nil {
		return
	}
	if snap.Errors == nil {
		snap.Errors = make(map[string]string)
	}
	for _, f := range families {
		snap.Errors[f] = err.Error()
	}
	c.log.Warn("read family", "host", c.host, "family", families[0], "err", err)
}

func (c *cycle) fields(snap *metrics.Snapshot, family source.Family, report ...string) ([][]string, bool) {
	var lines [][]string
	var err error
	ok := c.call(func(ctx context.Context) error {
		lines, err = source.ReadFields(ctx, c.src, family)
		return err
	})
	if !ok {
		if len(report) == 0 {
			report = []string{string(family)}
		}
		c.fail(snap, err, report...)
	}
	return lines, ok
}

// baseline returns the previous tuple for k and the seconds since it was
// observed. An entity missing from a later successful read of its family is
// treated as new when it comes back.
func (c *cycle) baseline(k state.Key) (metrics.Raw, float64) {
	e, ok := c.store.Get(k)
	if !ok || e.Cycle < c.familyOK[k.Family] {
		return nil, 0
	}
	return e.Values, c.at.Sub(e.At).Seconds()
}

func (c *cycle) stage(k state.Key, raw metrics.Raw) {
	c.staged[k] = state.Entry{Values: raw, At: c.at, Cycle: c.num}
	c.read[k.Family] = true
}

func (c *cycle) run() metrics.Snapshot {
	snap := metrics.Snapshot{
		ID:        uuid.NewString(),
		Host:      c.host,
		Timestamp: c.at.UTC(),
		Cycle:     c.num,
	}

	uptime := c.gauges(&snap)
	if c.lastAt.IsZero() {
		snap.Elapsed = metrics.Seconds(metrics.Round(uptime))
	} else {
		snap.Elapsed = metrics.Seconds(metrics.Round(c.at.Sub(c.lastAt).Seconds()))
	}

	c.procStat(&snap)
	c.memory(&snap)
	c.vm(&snap)
	c.tcp(&snap)
	c.network(&snap)
	c.disks(&snap)
	return snap
}

func (c *cycle) gauges(snap *metrics.Snapshot) float64 {
	var uptime float64
	if lines, ok := c.fields(snap, source.FamilyUptime); ok {
		if v, ok := metrics.ParseUptime(lines); ok {
			uptime = v
			snap.Uptime = metrics.Format(metrics.UptimeLabels, metrics.Derived{v})
		}
	}
	if lines, ok := c.fields(snap, source.FamilyLoad); ok {
		if v, ok := metrics.ParseLoad(lines); ok {
			snap.Load = metrics.Format(metrics.LoadLabels, v)
		}
	}
	return uptime
}

// procStat derives cpu and sys from a single read of the shared source.
func (c *cycle) procStat(snap *metrics.Snapshot) {
	lines, ok := c.fields(snap, source.FamilyCPU, string(source.FamilyCPU), string(source.FamilySys))
	if !ok {
		return
	}
	if curr, ok := metrics.ParseCPU(lines); ok {
		k := state.Key{Family: string(source.FamilyCPU)}
		prev, _ := c.baseline(k)
		snap.CPU = metrics.Format(metrics.CPULabels, metrics.CPUPercent(curr, prev))
		c.stage(k, curr)
	}
	if curr, ok := metrics.ParseSys(lines); ok {
		k := state.Key{Family: string(source.FamilySys)}
		prev, elapsed := c.baseline(k)
		snap.Sys = metrics.Format(metrics.SysLabels, metrics.SysRates(curr, prev, elapsed))
		c.stage(k, curr)
	}
}

func (c *cycle) memory(snap *metrics.Snapshot) {
	lines, ok := c.fields(snap, source.FamilyMem)
	if !ok {
		return
	}
	if raw, ok := metrics.ParseMem(lines); ok {
		snap.Mem = metrics.Format(metrics.MemLabels, metrics.Memory(raw))
	}
}

func (c *cycle) vm(snap *metrics.Snapshot) {
	lines, ok := c.fields(snap, source.FamilyVM)
	if !ok {
		return
	}
	if curr, ok := metrics.ParseVM(lines); ok {
		k := state.Key{Family: string(source.FamilyVM)}
		prev, elapsed := c.baseline(k)
		snap.VM = metrics.Format(metrics.VMLabels, metrics.VMRates(curr, prev, elapsed))
		c.stage(k, curr)
	}
}

// tcp merges the IPv4 and IPv6 tables. It only fails when both reads fail.
func (c *cycle) tcp(snap *metrics.Snapshot) {
	var tables [][][]string
	var lastErr error
	for _, family := range []source.Family{source.FamilyTCP, source.FamilyTCP6} {
		var lines [][]string
		ok := c.call(func(ctx context.Context) error {
			var err error
			lines, err = source.ReadFields(ctx, c.src, family)
			lastErr = err
			return err
		})
		if ok {
			tables = append(tables, lines)
		}
	}
	if len(tables) == 0 {
		c.fail(snap, lastErr, string(source.FamilyTCP))
		return
	}
	snap.TCP = metrics.Format(metrics.TCPLabels, metrics.TCPStates(tables...))
}

func (c *cycle) network(snap *metrics.Snapshot) {
	var ifaces []string
	var err error
	ok := c.call(func(ctx context.Context) error {
		ifaces, err = c.registry.ListNetworkInterfaces(ctx)
		return err
	})
	if !ok {
		c.fail(snap, err, string(source.FamilyNet))
		return
	}
	lines, ok := c.fields(snap, source.FamilyNet)
	if !ok {
		return
	}

	order, raws := metrics.ParseNet(lines, ifaces)
	for _, name := range order {
		k := state.Key{Family: string(source.FamilyNet), Entity: name}
		prev, elapsed := c.baseline(k)
		snap.Net = append(snap.Net, metrics.Entity{
			ID:    name,
			Stats: metrics.Format(metrics.NetLabels, metrics.NetRates(raws[name], prev, elapsed)),
		})
		c.stage(k, raws[name])
	}
	c.read[string(source.FamilyNet)] = true
}

// disks reports every tracked device and the aggregate io entry. The
// aggregate is derived from the devices that have a baseline, so a device
// appearing or vanishing never shows up as a burst of activity.
func (c *cycle) disks(snap *metrics.Snapshot) {
	var devices []string
	var err error
	ok := c.call(func(ctx context.Context) error {
		devices, err = c.registry.ListBlockDevices(ctx)
		return err
	})
	if !ok {
		c.fail(snap, err, string(source.FamilyIO))
		return
	}
	lines, ok := c.fields(snap, source.FamilyIO)
	if !ok {
		return
	}

	total, raws := metrics.ParseDisks(lines, devices)
	var currSum, prevSum metrics.Raw
	var sumElapsed float64
	for _, name := range devices {
		curr, found := raws[name]
		if !found {
			continue
		}
		k := state.Key{Family: string(source.FamilyIO), Entity: name}
		prev, elapsed := c.baseline(k)
		rates := metrics.Disk(curr, prev, elapsed)
		snap.Disks = append(snap.Disks, metrics.Entity{
			ID:    name,
			Stats: metrics.Format(metrics.DiskLabels, rates.Device()),
		})
		c.stage(k, curr)
		if prev != nil && elapsed > 0 {
			currSum = currSum.Add(curr)
			prevSum = prevSum.Add(prev)
			sumElapsed = elapsed
		}
	}

	agg := metrics.Disk(total, nil, 0)
	if prevSum != nil {
		agg = metrics.Disk(currSum, prevSum, sumElapsed)
	}
	snap.IO = metrics.Format(metrics.IOLabels, agg.Aggregate())
	c.read[string(source.FamilyIO)] = true
}
