package bridge

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReadySent
	PhaseAcknowledged
)

func (p Phase) String() string {
	switch p {
	case PhaseReadySent:
		return "ready-sent"
	case PhaseAcknowledged:
		return "acknowledged"
	default:
		return "idle"
	}
}

var (
	// ErrIgnored is returned for data that is not a host message at all.
	ErrIgnored = errors.New("not a host message")
	// ErrOriginRejected is returned for host messages from an origin other than the acknowledged one.
	ErrOriginRejected = errors.New("origin not allowed")
	ErrMissingType    = errors.New("message has no type")
)

// Bridge is the widget end of the host channel. It tracks the handshake and
// decides which host messages may be acted on.
type Bridge struct {
	mu            sync.Mutex
	phase         Phase
	allowedOrigin string
	tenant        string
	install       string
}

func New(tenant, install string) *Bridge {
	return &Bridge{tenant: tenant, install: install}
}

// Ready returns the WIDGET_READY announcement and moves to ready-sent.
func (b *Bridge) Ready() Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == PhaseIdle {
		b.phase = PhaseReadySent
	}
	return NewWidgetReady(b.tenant, b.install)
}

func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *Bridge) AllowedOrigin() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowedOrigin
}

func (b *Bridge) originAllowed(origin string) bool {
	if b.allowedOrigin == "" {
		return false
	}
	return b.allowedOrigin == "*" || b.allowedOrigin == origin
}

// Receive decodes data sent from origin and returns the message when it may
// be acted on. HOST_ACK is accepted from any origin until one is
// established, after that only from the established origin.
func (b *Bridge) Receive(origin string, data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Source != SourceHost {
		return nil, ErrIgnored
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Type == TypeHostAck {
		if b.allowedOrigin != "" && !b.originAllowed(origin) {
			logger.Warn("[bridge] handshake from disallowed origin", "origin", origin)
			return nil, ErrOriginRejected
		}
		b.allowedOrigin = msg.AllowedOrigin
		b.phase = PhaseAcknowledged
		return &msg, nil
	}

	if !b.originAllowed(origin) {
		logger.Warn("[bridge] rejected message from disallowed origin", "origin", origin, "type", msg.Type)
		return nil, ErrOriginRejected
	}
	return &msg, nil
}
