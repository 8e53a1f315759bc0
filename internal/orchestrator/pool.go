// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/unitorrent/internal/domain"
)

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInstanceExists   = errors.New("instance already registered")
	ErrPoolClosed       = errors.New("instance pool is closed")
	ErrInstanceBackoff  = errors.New("instance is in backoff period")
)

// Backoff constants
const (
	healthCheckTimeout     = 10 * time.Second
	healthCheckConcurrency = 4

	initialBackoff = 10 * time.Second
	maxBackoff     = 1 * time.Minute

	// rejected credentials back off longer so a daemon's ban logic is not fed
	authInitialBackoff = 5 * time.Minute
	authMaxBackoff     = 1 * time.Hour
)

// failureInfo tracks failure state and backoff for an instance
type failureInfo struct {
	nextRetry time.Time
	attempts  int
	lastError string
}

// InstanceStatus is the health summary of a pool member.
type InstanceStatus struct {
	Name       string    `json:"name"`
	ClientType string    `json:"clientType"`
	Host       string    `json:"host"`
	Healthy    bool      `json:"healthy"`
	Attempts   int       `json:"attempts,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
	NextRetry  time.Time `json:"nextRetry,omitzero"`
}

// Pool is a named registry of orchestrators with failure backoff.
type Pool struct {
	mu        sync.RWMutex
	instances map[string]*Orchestrator
	order     []string
	closed    bool
	failures  map[string]*failureInfo

	stopHealth chan struct{}
	healthOnce sync.Once
	now        func() time.Time
}

func NewPool() *Pool {
	return &Pool{
		instances:  make(map[string]*Orchestrator),
		failures:   make(map[string]*failureInfo),
		stopHealth: make(chan struct{}),
		now:        time.Now,
	}
}

// Add registers o under its name.
func (p *Pool) Add(o *Orchestrator) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, exists := p.instances[o.Name()]; exists {
		return errors.Wrap(ErrInstanceExists, o.Name())
	}

	p.instances[o.Name()] = o
	p.order = append(p.order, o.Name())
	log.Info().Str("instance", o.Name()).Str("client", o.ClientType().String()).Str("host", o.Host()).Msg("Registered instance")
	return nil
}

// Get returns the named orchestrator unless it is backing off.
func (p *Pool) Get(name string) (*Orchestrator, error) {
	o, err := p.Lookup(name)
	if err != nil {
		return nil, err
	}
	if info, ok := p.inBackoff(name); ok {
		return nil, fmt.Errorf("%w: %s until %s", ErrInstanceBackoff, name, info.nextRetry.Format(time.RFC3339))
	}
	return o, nil
}

// Lookup returns the named orchestrator regardless of its health.
func (p *Pool) Lookup(name string) (*Orchestrator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	o, ok := p.instances[name]
	if !ok {
		return nil, errors.Wrap(ErrInstanceNotFound, name)
	}
	return o, nil
}

// Names returns instance names in registration order.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// All returns the orchestrators in registration order.
func (p *Pool) All() []*Orchestrator {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Orchestrator, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.instances[name])
	}
	return out
}

// Remove unregisters and closes the named orchestrator.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	o, ok := p.instances[name]
	delete(p.instances, name)
	p.order = slices.DeleteFunc(p.order, func(n string) bool { return n == name })
	delete(p.failures, name)
	p.mu.Unlock()

	if ok {
		if err := o.Close(); err != nil {
			log.Warn().Err(err).Str("instance", name).Msg("Failed to close instance")
		}
		log.Info().Str("instance", name).Msg("Removed instance from pool")
	}
}

// Status summarizes the health of every instance.
func (p *Pool) Status() []InstanceStatus {
	out := make([]InstanceStatus, 0)
	for _, o := range p.All() {
		st := InstanceStatus{
			Name:       o.Name(),
			ClientType: o.ClientType().String(),
			Host:       o.Host(),
			Healthy:    true,
		}
		p.mu.RLock()
		if info, ok := p.failures[o.Name()]; ok {
			st.Attempts = info.attempts
			st.LastError = info.lastError
			st.NextRetry = info.nextRetry
			st.Healthy = !p.now().Before(info.nextRetry)
		}
		p.mu.RUnlock()
		out = append(out, st)
	}
	return out
}

// StartHealthChecks checks every instance on each tick until the pool closes.
func (p *Pool) StartHealthChecks(interval time.Duration) {
	p.healthOnce.Do(func() {
		ticker := time.NewTicker(interval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					p.CheckHealth(context.Background())
				case <-p.stopHealth:
					return
				}
			}
		}()
	})
}

// CheckHealth logs in to every instance not in backoff and records the outcome.
func (p *Pool) CheckHealth(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthCheckConcurrency)

	for _, o := range p.All() {
		if _, backoff := p.inBackoff(o.Name()); backoff {
			continue
		}

		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, healthCheckTimeout)
			defer cancel()

			if err := o.HealthCheck(cctx); err != nil {
				log.Warn().Err(err).Str("instance", o.Name()).Msg("Health check failed")
				p.TrackFailure(o.Name(), err)
				return nil
			}
			p.ResetFailureTracking(o.Name())
			return nil
		})
	}

	_ = g.Wait()
}

// Close clears the timers of every instance and releases them.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopHealth)

	instances := make([]*Orchestrator, 0, len(p.order))
	for _, name := range p.order {
		instances = append(instances, p.instances[name])
	}
	p.instances = make(map[string]*Orchestrator)
	p.order = nil
	p.failures = make(map[string]*failureInfo)
	p.mu.Unlock()

	var firstErr error
	for _, o := range instances {
		if err := o.Close(); err != nil {
			log.Warn().Err(err).Str("instance", o.Name()).Msg("Failed to close instance")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	log.Info().Int("instances", len(instances)).Msg("Instance pool closed")
	return firstErr
}

func (p *Pool) inBackoff(name string) (failureInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info, ok := p.failures[name]
	if !ok {
		return failureInfo{}, false
	}
	return *info, p.now().Before(info.nextRetry)
}

// TrackFailure records a failure and applies exponential backoff
func (p *Pool) TrackFailure(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.failures[name]
	if !ok {
		info = &failureInfo{}
		p.failures[name] = info
	}
	info.attempts++
	info.lastError = err.Error()

	var backoffDuration time.Duration
	if isAuthFailure(err) {
		backoffDuration = calculateBackoff(info.attempts, authInitialBackoff, authMaxBackoff)
		log.Warn().Str("instance", name).Int("attempts", info.attempts).Dur("backoffDuration", backoffDuration).Msg("Credentials rejected, applying extended backoff")
	} else {
		backoffDuration = calculateBackoff(info.attempts, initialBackoff, maxBackoff)
		log.Debug().Str("instance", name).Int("attempts", info.attempts).Dur("backoffDuration", backoffDuration).Msg("Connection failure, applying backoff")
	}

	info.nextRetry = p.now().Add(backoffDuration)
}

// ResetFailureTracking clears failure tracking after a successful check or an explicit user action
func (p *Pool) ResetFailureTracking(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.failures[name]; ok {
		delete(p.failures, name)
		log.Debug().Str("instance", name).Msg("Reset failure tracking after successful connection")
	}
}

// calculateBackoff returns exponential backoff duration with limits
func calculateBackoff(attempts int, initialDuration, maxDuration time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		return maxDuration
	}
	return min(time.Duration(1<<(attempts-1))*initialDuration, maxDuration)
}

// isAuthFailure recognizes rejected credentials and daemon side bans
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsAuthError(err) {
		return true
	}

	errorStr := strings.ToLower(err.Error())
	return strings.Contains(errorStr, "ip is banned") ||
		strings.Contains(errorStr, "too many failed login attempts") ||
		strings.Contains(errorStr, "banned") ||
		strings.Contains(errorStr, "forbidden")
}
