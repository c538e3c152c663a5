package carriers

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/config"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/prom"
)

// Registry maps carrier keys to adapters and records per carrier metrics
// around every send.
type Registry struct {
	mu       sync.RWMutex
	carriers map[string]Carrier
	tallies  map[string]*Tally
}

func NewRegistry(carriers ...Carrier) *Registry {
	r := &Registry{
		carriers: make(map[string]Carrier, len(carriers)),
		tallies:  make(map[string]*Tally, len(carriers)),
	}
	for _, c := range carriers {
		r.Register(c)
	}
	return r
}

// NewRegistryFromConfig registers the stub, sveve and the three twilio
// accounts. Regional twilio credentials fall back to the global ones.
func NewRegistryFromConfig(c *config.Config) *Registry {
	global := TwilioCredentials{
		AccountSID: c.TwilioAccountSID,
		AuthToken:  c.TwilioAuthToken,
		From:       c.TwilioFrom,
	}
	us := TwilioCredentials{
		AccountSID: c.TwilioUSAccountSID,
		AuthToken:  c.TwilioUSAuthToken,
		From:       c.TwilioUSFrom,
	}.orDefault(global)
	uk := TwilioCredentials{
		AccountSID: c.TwilioUKAccountSID,
		AuthToken:  c.TwilioUKAuthToken,
		From:       c.TwilioUKFrom,
	}.orDefault(global)

	return NewRegistry(
		Stub{},
		NewSveve(SveveConfig{
			URL:     c.SveveURL,
			User:    c.SveveUser,
			Passwd:  c.SvevePasswd,
			From:    c.SveveFrom,
			Timeout: c.CarrierTimeout,
		}),
		NewTwilio(KeyTwilio, c.TwilioURL, global, c.CarrierTimeout),
		NewTwilio(KeyTwilioUS, c.TwilioURL, us, c.CarrierTimeout),
		NewTwilio(KeyTwilioUK, c.TwilioURL, uk, c.CarrierTimeout),
	)
}

func (r *Registry) Register(c Carrier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carriers[c.Name()] = c
	r.tallies[c.Name()] = &Tally{}
	logger.Debug("carrier registered", "carrier", c.Name())
}

func (r *Registry) Get(key string) (Carrier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carriers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, key)
	}
	return c, nil
}

// Send delivers req through the carrier registered under key.
func (r *Registry) Send(ctx context.Context, key string, req SendRequest) (SendResult, error) {
	c, err := r.Get(key)
	if err != nil {
		return SendResult{}, err
	}

	r.mu.RLock()
	tally := r.tallies[key]
	r.mu.RUnlock()

	start := time.Now()
	res, err := c.Send(ctx, req)
	latency := time.Since(start)
	tally.observe(latency, err)

	if err != nil {
		prom.ObserveCarrierSend(key, "error", latency.Seconds())
		logger.Warn("carrier send failed", "carrier", key, "error", err, "latency_ms", latency.Milliseconds())
		return SendResult{}, err
	}

	prom.ObserveCarrierSend(key, "ok", latency.Seconds())
	logger.Info("carrier accepted message", "carrier", key, "external_id", res.ExternalID, "status", res.Status, "latency_ms", latency.Milliseconds())
	return res, nil
}

// Stats returns the recent outcomes of every carrier, busiest first.
func (r *Registry) Stats() []CarrierStats {
	r.mu.RLock()
	stats := make([]CarrierStats, 0, len(r.tallies))
	for name, t := range r.tallies {
		stats = append(stats, t.snapshot(name))
	}
	r.mu.RUnlock()

	slices.SortFunc(stats, func(a, b CarrierStats) int {
		if n := cmp.Compare(b.Accepted+b.Failed, a.Accepted+a.Failed); n != 0 {
			return n
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return stats
}
