package sync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	relayDialTimeout      = 10 * time.Second
	relayReconnectBase    = time.Second
	relayReconnectMax     = time.Minute
	relayHandshakeMessage = "subscribe"
)

// Relay maintains a websocket connection to the platform's push relay
// and applies gene_push frames as they arrive. Broadcast pushes reach
// online instances through this channel without waiting for the next
// heartbeat pull.
type Relay struct {
	url     string
	token   string
	applier *Applier
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a relay listener. An empty url disables it.
func NewRelay(url, token string, applier *Applier, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{url: url, token: token, applier: applier, logger: logger}
}

// Start begins the connect/read loop in a background goroutine. A relay
// without a URL starts as a no-op.
func (r *Relay) Start(ctx context.Context) {
	if r.url == "" {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("push relay started", "url", r.url)
}

// Stop cancels the relay loop and waits for it to exit.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// loop reconnects with exponential backoff until the context is done.
func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	backoff := relayReconnectBase
	for {
		if err := r.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("relay connection lost", "error", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > relayReconnectMax {
			backoff = relayReconnectMax
		}
	}
}

// connectAndRead dials the relay and applies frames until the
// connection drops. A successful read resets the caller's backoff by
// returning only on failure.
func (r *Relay) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, relayDialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if r.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + r.token}}
	}
	conn, _, err := websocket.Dial(dialCtx, r.url, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, map[string]string{"action": relayHandshakeMessage}); err != nil {
		return err
	}
	r.logger.Info("relay connected")

	for {
		var frame genePushFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if len(frame.Genes) == 0 {
			continue
		}
		if _, err := r.applier.Apply(ctx, frame.Source, frame.Genes); err != nil {
			r.logger.Error("failed to apply relayed genes", "source", frame.Source, "error", err)
		}
	}
}
