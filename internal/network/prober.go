package network

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pinger is anything that can tell whether the remote answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober turns periodic remote pings into monitor signals, the way the OS
// raises online and offline events for a browser.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

func NewProber(pinger Pinger, monitor *Monitor, interval time.Duration, timeout time.Duration, log zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		pinger:   pinger,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(pingCtx); err != nil {
		p.log.Debug().Err(err).Msg("remote ping failed")
		return false
	}
	return true
}

// Seed sets the monitor from a single ping without notifying listeners that
// nothing changed. It is meant for startup, before anyone subscribes.
func (p *Prober) Seed(ctx context.Context) bool {
	online := p.probe(ctx)
	if online != p.monitor.IsOnline() {
		p.monitor.SetOnline(online)
	}
	p.log.Info().Bool("online", online).Msg("connectivity seeded")
	return online
}

// Run pings on every tick until ctx ends and signals the monitor on each
// change of result.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := p.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if online != p.monitor.IsOnline() {
				p.log.Info().Bool("online", online).Msg("connectivity changed")
				p.monitor.SetOnline(online)
			}
		}
	}
}
