package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻と定期実行を抽象化します
// 本番では Real を、テストでは Fake を注入します
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker は一定間隔で時刻を送信します
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real はシステム時計です
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fake は Advance されたときだけ進むテスト用の時計です
type Fake struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

// NewFake は initial を現在時刻とする Fake を作成します
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Set は現在時刻を t に変更します。Ticker は発火しません
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t.UTC()
}

// Advance は時刻を d 進め、期限を過ぎた Ticker を発火させます
// Ticker のチャネルは容量1で、取りこぼしたティックは破棄されます
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = f.current.Add(d)
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(f.current) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		clock:    f,
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     f.current.Add(d),
	}
	f.tickers = append(f.tickers, t)
	return t
}

type fakeTicker struct {
	clock    *Fake
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
