// Command widget runs the reconciliation engine headless. The host page is
// replaced by stdin and stdout: every stdin line is either a host message
// {"origin": "...", "data": {...}} or a local action {"action": "send", ...},
// and every message the widget posts to the host is written to stdout as one
// JSON line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/nimasrn/sms-widget-gateway/internal/bridge"
	"github.com/nimasrn/sms-widget-gateway/internal/widget"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// input is one stdin line.
type input struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`

	Action   string `json:"action"`
	Body     string `json:"body"`
	ThreadID string `json:"threadId"`
	GroupID  string `json:"groupId"`
	Visible  *bool  `json:"visible"`
}

type stdoutHost struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (h *stdoutHost) Post(msg bridge.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enc.Encode(msg)
}

func main() {
	gatewayURL := flag.String("gateway", envOrDefault("WIDGET_GATEWAY_URL", "http://127.0.0.1:8080/api/v1"), "gateway api base url")
	tenant := flag.String("tenant", envOrDefault("WIDGET_TENANT_ID", "dunbar148"), "tenant id")
	install := flag.String("install", strings.TrimSpace(os.Getenv("WIDGET_INSTALL_ID")), "install id")
	apiKey := flag.String("api-key", strings.TrimSpace(os.Getenv("WIDGET_API_KEY")), "tenant api key")
	token := flag.String("token", strings.TrimSpace(os.Getenv("WIDGET_TOKEN")), "bearer token for sends, usually given by the host handshake")
	flag.Parse()

	if err := logger.Configure(os.Getenv("LOG_ENV"), os.Getenv("LOG_LEVEL")); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting widget", "version", version, "commit", commit, "date", date, "tenant", *tenant)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := &stdoutHost{enc: json.NewEncoder(os.Stdout)}
	engine := widget.NewEngine(
		widget.NewStore(widget.NewState(*tenant, *install)),
		widget.NewClient(*gatewayURL, *apiKey, *token),
		bridge.New(*tenant, *install),
		host,
	)
	engine.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readInput(ctx, os.Stdin, engine)
	}()

	select {
	case <-ctx.Done():
	case <-done:
		stop()
	}
	engine.Wait()
}

func readInput(ctx context.Context, r io.Reader, engine *widget.Engine) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var in input
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			logger.Warn("[widget] bad input line", "error", err)
			continue
		}
		if in.Action == "" {
			if err := engine.HandleHostData(in.Origin, in.Data); err != nil {
				logger.Debug("[widget] host message dropped", "origin", in.Origin, "error", err)
			}
			continue
		}
		act(ctx, engine, in)
	}
	if err := sc.Err(); err != nil {
		logger.Error("[widget] reading stdin", "error", err)
	}
}

func act(ctx context.Context, engine *widget.Engine, in input) {
	switch in.Action {
	case "open":
		engine.OpenThread(in.ThreadID)
	case "group":
		engine.SelectGroup(in.GroupID)
	case "visible":
		engine.SetVisible(in.Visible == nil || *in.Visible)
	case "send":
		res, err := engine.Send(ctx, in.Body)
		if err != nil {
			logger.Warn("[widget] send failed", "error", err)
			return
		}
		logger.Info("[widget] sent", "message", res.MessageID, "thread", res.ThreadID, "status", res.Status)
	case "broadcast":
		n, err := engine.Broadcast(ctx, in.Body)
		if err != nil {
			logger.Warn("[widget] broadcast failed", "error", err)
			return
		}
		logger.Info("[widget] broadcast sent", "recipients", n)
	default:
		logger.Warn("[widget] unknown action", "action", in.Action)
	}
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
