package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/sitesift/internal/config"
)

var (
	// ErrPoolExhausted means no browser could be launched or reused.
	ErrPoolExhausted = errors.New("browser pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("browser pool is closed")
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Size        int
	MaxRequests int
	MaxAge      time.Duration
	IdleTimeout time.Duration
	ChromePath  string
	Headless    bool
}

// PoolOptionsFrom reads pool settings from cfg. Browsers are always headless.
func PoolOptionsFrom(cfg *config.Config) PoolOptions {
	return PoolOptions{
		Size:        cfg.BrowserPoolSize,
		MaxRequests: cfg.BrowserMaxRequests,
		MaxAge:      cfg.BrowserMaxAge,
		IdleTimeout: cfg.BrowserIdleTimeout,
		ChromePath:  cfg.ChromePath,
		Headless:    true,
	}
}

// ManagedBrowser is a pooled rod.Browser plus its usage counters.
type ManagedBrowser struct {
	ID           string
	Browser      *rod.Browser
	InUse        bool
	CreatedAt    time.Time
	LastUsedAt   time.Time
	RequestCount int
}

// Pool hands out at most Size launched browsers to renderers.
type Pool struct {
	mu       sync.Mutex
	browsers map[string]*ManagedBrowser
	waiting  []chan *ManagedBrowser
	opts     PoolOptions
	logger   *slog.Logger
	closed   bool

	now    func() time.Time
	launch func(ctx context.Context) (*rod.Browser, error)
}

// NewPool creates an empty pool. Browsers are launched on demand.
func NewPool(opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		browsers: make(map[string]*ManagedBrowser),
		opts:     opts,
		logger:   logger.With("component", "browser_pool"),
		now:      time.Now,
	}
	p.launch = p.launchBrowser
	return p
}

// Warmup makes sure a Chromium binary is available so the first render does
// not pay for the download.
func (p *Pool) Warmup(ctx context.Context) error {
	if p.opts.ChromePath != "" {
		p.logger.Info("using custom Chrome path", "path", p.opts.ChromePath)
		return nil
	}
	p.logger.Info("ensuring Chromium is available")
	lb := launcher.NewBrowser()
	lb.Context = ctx
	path, err := lb.Get()
	if err != nil {
		return err
	}
	p.logger.Info("Chromium ready", "path", path)
	return nil
}

// Acquire returns an idle browser, launches a new one while under Size, or
// waits for a Release until ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*ManagedBrowser, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	for id, b := range p.browsers {
		if b.InUse {
			continue
		}
		if !p.isHealthy(b) {
			p.closeBrowser(b)
			delete(p.browsers, id)
			continue
		}
		b.InUse = true
		b.LastUsedAt = p.now()
		p.mu.Unlock()
		return b, nil
	}

	if len(p.browsers) < p.opts.Size {
		b, err := p.createBrowser(ctx)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.browsers[b.ID] = b
		p.mu.Unlock()
		return b, nil
	}

	// Pool is full: wait for a release.
	waitChan := make(chan *ManagedBrowser, 1)
	p.waiting = append(p.waiting, waitChan)
	p.mu.Unlock()

	select {
	case b, ok := <-waitChan:
		if !ok {
			return nil, ErrPoolClosed
		}
		return b, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, ch := range p.waiting {
			if ch == waitChan {
				p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Release marks b idle, or recycles it once it has served MaxRequests.
func (p *Pool) Release(b *ManagedBrowser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.closeBrowser(b)
		return
	}

	b.InUse = false
	b.RequestCount++
	b.LastUsedAt = p.now()

	if p.needsRecycle(b) {
		p.logger.Info("recycling browser", "id", b.ID, "age", p.now().Sub(b.CreatedAt), "requests", b.RequestCount)
		p.closeBrowser(b)
		delete(p.browsers, b.ID)
		// A waiter gets a fresh browser on its own retry; wake it with one
		// launched in the background.
		if len(p.waiting) > 0 {
			go p.replace()
		}
		return
	}

	p.handOff(b)
}

// handOff gives b to the oldest waiter, if any. Callers hold p.mu.
func (p *Pool) handOff(b *ManagedBrowser) {
	if len(p.waiting) == 0 {
		return
	}
	waitChan := p.waiting[0]
	p.waiting = p.waiting[1:]
	b.InUse = true
	b.LastUsedAt = p.now()
	waitChan <- b
}

func (p *Pool) replace() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	b, err := p.createBrowser(ctx)
	if err != nil {
		p.logger.Error("failed to create replacement browser", "error", err)
		return
	}
	b.InUse = false
	p.browsers[b.ID] = b
	p.handOff(b)
}

// Close kills every browser. Pending Acquire calls get ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for _, b := range p.browsers {
		p.closeBrowser(b)
	}
	p.browsers = make(map[string]*ManagedBrowser)

	for _, ch := range p.waiting {
		close(ch)
	}
	p.waiting = nil
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Total     int `json:"total"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
	MaxSize   int `json:"max_size"`
	Waiting   int `json:"waiting"`
}

// Stats counts browsers by state.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		Total:   len(p.browsers),
		MaxSize: p.opts.Size,
		Waiting: len(p.waiting),
	}
	for _, b := range p.browsers {
		if b.InUse {
			stats.InUse++
		} else {
			stats.Available++
		}
	}
	return stats
}

// createBrowser launches a browser and wraps it. Callers hold p.mu.
func (p *Pool) createBrowser(ctx context.Context) (*ManagedBrowser, error) {
	rb, err := p.launch(ctx)
	if err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	p.logger.Info("browser created", "id", id)

	now := p.now()
	return &ManagedBrowser{
		ID:         id,
		Browser:    rb,
		InUse:      true,
		CreatedAt:  now,
		LastUsedAt: now,
	}, nil
}

func (p *Pool) launchBrowser(ctx context.Context) (*rod.Browser, error) {
	l := launcher.New().Context(ctx)
	if p.opts.ChromePath != "" {
		l = l.Bin(p.opts.ChromePath)
	}

	l = l.
		Headless(p.opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-features", "TranslateUI").
		Set("disable-ipc-flooding-protection").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// isHealthy reports whether an idle browser can be reused.
func (p *Pool) isHealthy(b *ManagedBrowser) bool {
	if p.needsRecycle(b) {
		return false
	}
	if p.opts.IdleTimeout > 0 && !b.InUse && p.now().Sub(b.LastUsedAt) > p.opts.IdleTimeout {
		return false
	}
	if b.Browser == nil {
		return true
	}

	defer func() {
		_ = recover()
	}()
	_, err := b.Browser.Pages()
	return err == nil
}

func (p *Pool) needsRecycle(b *ManagedBrowser) bool {
	if p.opts.MaxAge > 0 && p.now().Sub(b.CreatedAt) > p.opts.MaxAge {
		return true
	}
	if p.opts.MaxRequests > 0 && b.RequestCount >= p.opts.MaxRequests {
		return true
	}
	return false
}

func (p *Pool) closeBrowser(b *ManagedBrowser) {
	if b.Browser != nil {
		if err := b.Browser.Close(); err != nil {
			p.logger.Warn("error closing browser", "id", b.ID, "error", err)
		}
	}
	p.logger.Debug("browser closed", "id", b.ID)
}

// StartCleanup closes idle browsers every minute until ctx is done.
func (p *Pool) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupIdle()
		}
	}
}

func (p *Pool) cleanupIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for id, b := range p.browsers {
		if !b.InUse && p.opts.IdleTimeout > 0 && p.now().Sub(b.LastUsedAt) > p.opts.IdleTimeout {
			p.logger.Info("cleaning up idle browser", "id", id, "idle_time", p.now().Sub(b.LastUsedAt))
			p.closeBrowser(b)
			delete(p.browsers, id)
		}
	}
}
