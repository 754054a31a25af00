package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/genebank/internal/audit"
	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/persistence"
	"github.com/basket/genebank/internal/store"
)

// GenePushPayload is the typed message body for a direct
// instance-to-instance push over the registry message channel, and the
// frame delivered by the relay.
type GenePushPayload struct {
	Type   string      `json:"type"` // always persistence.MessageTypeGenePush
	Source string      `json:"source"`
	SentAt time.Time   `json:"sent_at"`
	Genes  []gene.Gene `json:"genes"`
}

// genePushFrame is the receive-side shape of the same payload. Genes
// stay raw until they pass the wire schema in Apply; peers are a trust
// boundary.
type genePushFrame struct {
	Type   string            `json:"type"`
	Source string            `json:"source"`
	Genes  []json.RawMessage `json:"genes"`
}

// Pusher distributes genes to other instances: through the platform's
// broadcast API, or directly over the registry message channel when the
// platform is bypassed.
type Pusher struct {
	store      *store.Store
	client     *Client
	registry   *persistence.Store
	instanceID string
	logger     *slog.Logger
}

// NewPusher wires a pusher. The registry may be nil when direct pushes
// are not used.
func NewPusher(st *store.Store, client *Client, registry *persistence.Store, instanceID string, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{store: st, client: client, registry: registry, instanceID: instanceID, logger: logger}
}

// Broadcast asks the platform to deliver the genes to all online
// instances, or to one user when targetUserID is set.
func (p *Pusher) Broadcast(ctx context.Context, geneIDs []string, targetUserID, message string) (*BroadcastResponse, error) {
	if len(geneIDs) == 0 {
		return &BroadcastResponse{}, nil
	}
	resp, err := p.client.BroadcastPush(ctx, geneIDs, targetUserID, message)
	if err != nil {
		return nil, err
	}
	p.logger.Info("broadcast push sent", "genes", len(geneIDs), "pushed", resp.Pushed, "target", targetUserID)
	return resp, nil
}

// PushDirect loads full gene content locally and delivers it to one
// instance over the registry message channel, bypassing the platform.
func (p *Pusher) PushDirect(ctx context.Context, geneIDs []string, toInstance string) error {
	if p.registry == nil {
		return fmt.Errorf("sync: direct push requires the instance registry")
	}
	payload, count, err := p.buildPayload(ctx, geneIDs)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("sync: none of the requested genes exist locally")
	}
	if err := p.registry.SendMessage(ctx, p.instanceID, toInstance, persistence.MessageTypeGenePush, payload); err != nil {
		return fmt.Errorf("sync: direct push to %s: %w", toInstance, err)
	}
	p.logger.Info("direct push sent", "to", toInstance, "genes", count)
	return nil
}

// PushDirectAll fans a direct push out to every active instance in the
// registry except this one. Returns the number of instances reached.
func (p *Pusher) PushDirectAll(ctx context.Context, geneIDs []string) (int, error) {
	if p.registry == nil {
		return 0, fmt.Errorf("sync: direct push requires the instance registry")
	}
	payload, count, err := p.buildPayload(ctx, geneIDs)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("sync: none of the requested genes exist locally")
	}
	targets, err := p.registry.ListActiveInstances(ctx, p.instanceID)
	if err != nil {
		return 0, err
	}
	reached := 0
	for _, target := range targets {
		if err := p.registry.SendMessage(ctx, p.instanceID, target.InstanceID, persistence.MessageTypeGenePush, payload); err != nil {
			p.logger.Warn("direct push to instance failed", "to", target.InstanceID, "error", err)
			continue
		}
		reached++
	}
	p.logger.Info("direct push fan-out", "genes", count, "reached", reached, "targets", len(targets))
	return reached, nil
}

// buildPayload loads the requested genes and marshals the push frame.
// Missing ids are skipped with a warning.
func (p *Pusher) buildPayload(ctx context.Context, geneIDs []string) (string, int, error) {
	var genes []gene.Gene
	for _, id := range geneIDs {
		g, err := p.store.Get(ctx, id)
		if err != nil {
			p.logger.Warn("skipping missing gene in push", "id", id, "error", err)
			continue
		}
		genes = append(genes, *g)
	}
	raw, err := json.Marshal(GenePushPayload{
		Type:   persistence.MessageTypeGenePush,
		Source: p.instanceID,
		SentAt: time.Now().UTC(),
		Genes:  genes,
	})
	if err != nil {
		return "", 0, fmt.Errorf("sync: marshal push payload: %w", err)
	}
	return string(raw), len(genes), nil
}

// Applier upserts pushed genes into the shared scope.
type Applier struct {
	store  *store.Store
	bus    *bus.Bus // may be nil in tests
	logger *slog.Logger
}

// NewApplier wires an applier.
func NewApplier(st *store.Store, b *bus.Bus, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: st, bus: b, logger: logger}
}

// Apply checks pushed records against the wire schema and upserts them
// into the team scope. Malformed genes are skipped; the count of applied
// genes is returned.
func (a *Applier) Apply(ctx context.Context, source string, raws []json.RawMessage) (int, error) {
	applied := 0
	for _, raw := range raws {
		parsed, err := gene.ValidateRecord(raw)
		if err != nil {
			a.logger.Warn("skipping pushed record failing wire schema", "source", source, "error", err)
			continue
		}
		g := *parsed
		g.Metadata.Scope = gene.ScopeTeam
		if err := g.Validate(); err != nil {
			a.logger.Warn("skipping malformed pushed gene", "id", g.ID, "source", source, "error", err)
			continue
		}
		if err := a.store.Put(ctx, &g, gene.ScopeTeam); err != nil {
			return applied, fmt.Errorf("sync: apply pushed gene %s: %w", g.ID, err)
		}
		audit.Record("push_applied", g.ID, source, "")
		applied++
	}
	if applied > 0 && a.bus != nil {
		a.bus.Publish(bus.TopicGenePushed, bus.GenePushEvent{Source: source, Count: applied})
	}
	a.logger.Info("pushed genes applied", "source", source, "count", applied)
	return applied, nil
}

// DrainMessages reads unread gene_push messages addressed to this
// instance from the registry channel and applies them. Non-push message
// types are left for their own consumers' semantics but are already
// marked read by the channel; they are simply ignored here.
func (a *Applier) DrainMessages(ctx context.Context, registry *persistence.Store, instanceID string) (int, error) {
	msgs, err := registry.ReadMessages(ctx, instanceID, 50)
	if err != nil {
		return 0, fmt.Errorf("sync: drain messages: %w", err)
	}
	total := 0
	for _, m := range msgs {
		if m.Type != persistence.MessageTypeGenePush {
			continue
		}
		var frame genePushFrame
		if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
			a.logger.Warn("malformed gene_push payload", "from", m.FromInstance, "error", err)
			continue
		}
		n, err := a.Apply(ctx, frame.Source, frame.Genes)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
