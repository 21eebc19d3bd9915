package engine

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// DomainMemory remembers, per host, the engine that loaded a page after
// the first-choice engine failed. Sessions sharing a DomainMemory start
// with that engine for the host. Entries live for ttl.
type DomainMemory struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	hosts map[string]remembered

	stop     chan struct{}
	stopOnce sync.Once
}

type remembered struct {
	engine string
	until  time.Time
}

// NewDomainMemory returns a DomainMemory whose entries expire after ttl
// (24h when ttl <= 0). Expired entries are swept hourly until Stop.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &DomainMemory{
		ttl:   ttl,
		now:   time.Now,
		hosts: make(map[string]remembered),
		stop:  make(chan struct{}),
	}
	go m.sweepEvery(time.Hour)
	return m
}

// Lookup returns the engine remembered for rawURL's host, or "".
func (m *DomainMemory) Lookup(rawURL string) string {
	host := hostOf(rawURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.hosts[host]
	if !ok {
		return ""
	}
	if m.now().After(r.until) {
		delete(m.hosts, host)
		return ""
	}
	return r.engine
}

// Remember records engine as the one that works for rawURL's host.
func (m *DomainMemory) Remember(rawURL, engine string) {
	host := hostOf(rawURL)
	if host == "" {
		return
	}
	m.mu.Lock()
	m.hosts[host] = remembered{engine: engine, until: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

// Forget drops whatever is remembered for rawURL's host.
func (m *DomainMemory) Forget(rawURL string) {
	host := hostOf(rawURL)
	m.mu.Lock()
	delete(m.hosts, host)
	m.mu.Unlock()
}

// Len reports how many hosts are remembered, expired entries included.
func (m *DomainMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts)
}

// Stop ends the sweeper. It may be called more than once.
func (m *DomainMemory) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *DomainMemory) sweepEvery(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *DomainMemory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for host, r := range m.hosts {
		if now.After(r.until) {
			delete(m.hosts, host)
		}
	}
}

// hostOf returns the lower-cased host of rawURL, or "" if it has none.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
