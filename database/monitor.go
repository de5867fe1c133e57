package database

import (
	"context"
	"log"
	"time"
)

// StartMonitor periodically pings the store and logs connectivity transitions.
// It is observability only; nothing is retried or reconnected here.
func (p *Pool) StartMonitor(parent context.Context, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}

	p.mu.Lock()
	p.stopMonitor = cancel
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		healthy := true
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				err := p.Ping(ctx)
				c()
				healthy = logTransition(p.target, healthy, err)
			}
		}
	}()

	return cancel
}

// logTransition logs only when the connectivity state changes and returns the new state
func logTransition(target string, wasHealthy bool, err error) bool {
	switch {
	case err != nil && wasHealthy:
		log.Printf("Database connection to %s lost: %v", target, err)
		return false
	case err == nil && !wasHealthy:
		log.Printf("Database connection to %s restored", target)
		return true
	}
	return err == nil
}
