package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SveveRequest is the body the sveve adapter posts.
type SveveRequest struct {
	User   string `json:"user"`
	Passwd string `json:"passwd"`
	To     string `json:"to"`
	Msg    string `json:"msg"`
	From   string `json:"from"`
	F      string `json:"f"`
}

type sveveResult struct {
	MsgOkCount  int     `json:"msgOkCount"`
	StdSMSCount int     `json:"stdSMSCount"`
	IDs         []int64 `json:"ids,omitempty"`
	FatalError  string  `json:"fatalError,omitempty"`
}

// ReceivedEvent is one webhook delivery as the host would store it.
type ReceivedEvent struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Body           json.RawMessage `json:"body"`
	ReceivedAt     time.Time       `json:"receivedAt"`
	Attempts       int             `json:"attempts"`
}

// Sandbox fakes the carriers and the host webhook for local runs.
type Sandbox struct {
	mu           sync.Mutex
	deliveryRate float64
	webhookRate  float64
	rng          *rand.Rand
	nextID       int64

	events map[string]*ReceivedEvent
	order  []string
	sent   []SentSMS
}

// SentSMS is one message accepted by a fake carrier.
type SentSMS struct {
	Carrier    string    `json:"carrier"`
	ExternalID string    `json:"externalId"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	At         time.Time `json:"at"`
}

func NewSandbox(deliveryRate, webhookRate float64) *Sandbox {
	return &Sandbox{
		deliveryRate: deliveryRate,
		webhookRate:  webhookRate,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:       1000,
		events:       map[string]*ReceivedEvent{},
	}
}

func (s *Sandbox) succeed(rate float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func (s *Sandbox) record(sms SentSMS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sms)
}

// SveveSend answers like the sveve JSON API, nested under "response".
func (s *Sandbox) SveveSend(c *gin.Context) {
	var req SveveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"response": sveveResult{FatalError: "invalid request: " + err.Error()}})
		return
	}
	if req.User == "" || req.Passwd == "" {
		c.JSON(http.StatusOK, gin.H{"response": sveveResult{FatalError: "auth failed"}})
		return
	}
	if !s.succeed(s.deliveryRate) {
		log.Warn().Str("to", req.To).Msg("sveve send rejected")
		c.JSON(http.StatusOK, gin.H{"response": sveveResult{FatalError: "operator rejected the message"}})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	s.record(SentSMS{Carrier: "sveve", ExternalID: fmt.Sprint(id), To: req.To, From: req.From, Body: req.Msg, At: time.Now()})

	log.Info().Str("to", req.To).Str("from", req.From).Int64("id", id).Msg("sveve send accepted")
	c.JSON(http.StatusOK, gin.H{"response": sveveResult{MsgOkCount: 1, StdSMSCount: 1, IDs: []int64{id}}})
}

// TwilioSend answers like the Twilio Messages API.
func (s *Sandbox) TwilioSend(c *gin.Context) {
	sid, token, ok := c.Request.BasicAuth()
	if !ok || sid != c.Param("sid") || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 20003, "message": "Authenticate"})
		return
	}
	to, from, body := c.PostForm("To"), c.PostForm("From"), c.PostForm("Body")
	if to == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 21604, "message": "A 'To' phone number and a 'Body' are required."})
		return
	}
	if !s.succeed(s.deliveryRate) {
		log.Warn().Str("to", to).Msg("twilio send rejected")
		c.JSON(http.StatusBadRequest, gin.H{"code": 30007, "message": "Message filtered"})
		return
	}

	externalID := "SM" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.record(SentSMS{Carrier: "twilio", ExternalID: externalID, To: to, From: from, Body: body, At: time.Now()})

	log.Info().Str("to", to).Str("from", from).Str("sid", externalID).Msg("twilio send accepted")
	c.JSON(http.StatusCreated, gin.H{"sid": externalID, "status": "queued", "to": to, "from": from})
}

// Webhook plays the host: it stores each Idempotency-Key once and answers
// 2xx for replays so the gateway marks them delivered.
func (s *Sandbox) Webhook(c *gin.Context) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if !s.succeed(s.webhookRate) {
		log.Warn().Str("key", key).Msg("webhook failing on purpose")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "host temporarily unavailable"})
		return
	}

	s.mu.Lock()
	evt, duplicate := s.events[key]
	if duplicate {
		evt.Attempts++
	} else {
		evt = &ReceivedEvent{IdempotencyKey: key, Body: body, ReceivedAt: time.Now(), Attempts: 1}
		s.events[key] = evt
		s.order = append(s.order, key)
	}
	s.mu.Unlock()

	log.Info().Str("key", key).Bool("duplicate", duplicate).Msg("webhook event received")
	c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": duplicate})
}

func (s *Sandbox) Events(c *gin.Context) {
	s.mu.Lock()
	out := make([]ReceivedEvent, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.events[k])
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (s *Sandbox) Sent(c *gin.Context) {
	s.mu.Lock()
	out := append([]SentSMS(nil), s.sent...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// UpdateConfig changes the success rates at runtime.
func (s *Sandbox) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
		WebhookRate  *float64 `json:"webhook_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	s.mu.Lock()
	if r := config.DeliveryRate; r != nil && *r >= 0 && *r <= 1 {
		s.deliveryRate = *r
	}
	if r := config.WebhookRate; r != nil && *r >= 0 && *r <= 1 {
		s.webhookRate = *r
	}
	res := gin.H{"delivery_rate": s.deliveryRate, "webhook_rate": s.webhookRate}
	s.mu.Unlock()

	log.Info().Interface("config", res).Msg("sandbox config updated")
	c.JSON(http.StatusOK, res)
}

func (s *Sandbox) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// SetupRouter mounts the fakes where the carrier adapters expect them,
// so SMS_SVEVE_URL=<sandbox>/SMS/SendMessage and SMS_TWILIO_URL=<sandbox>.
func SetupRouter(s *Sandbox) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.POST("/SMS/SendMessage", s.SveveSend)
	router.POST("/2010-04-01/Accounts/:sid/Messages.json", s.TwilioSend)

	host := router.Group("/host")
	{
		host.POST("/webhook", s.Webhook)
		host.GET("/events", s.Events)
	}

	router.GET("/sent", s.Sent)
	router.PUT("/config", s.UpdateConfig)
	router.GET("/health", s.Health)
	return router
}
