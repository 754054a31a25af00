package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/otel"
)

// MetricsBridge subscribes to the event bus and mirrors gene lifecycle
// events onto the OTel instruments. It is the only place metrics are
// recorded, so the recorder and sync engine stay free of telemetry
// plumbing.
type MetricsBridge struct {
	bus     *bus.Bus
	metrics *otel.Metrics
	logger  *slog.Logger
	sub     *bus.Subscription
	done    chan struct{}
}

func NewMetricsBridge(b *bus.Bus, m *otel.Metrics, logger *slog.Logger) *MetricsBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsBridge{bus: b, metrics: m, logger: logger}
}

// Start begins consuming events. Stop must be called to release the
// subscription.
func (mb *MetricsBridge) Start(ctx context.Context) {
	mb.sub = mb.bus.Subscribe("")
	mb.done = make(chan struct{})

	go func() {
		defer close(mb.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-mb.sub.Ch():
				if !ok {
					return
				}
				mb.handle(ctx, ev)
			}
		}
	}()
}

// Stop unsubscribes and waits for the consumer goroutine to exit.
func (mb *MetricsBridge) Stop() {
	if mb.sub == nil {
		return
	}
	mb.bus.Unsubscribe(mb.sub)
	<-mb.done
}

func (mb *MetricsBridge) handle(ctx context.Context, ev bus.Event) {
	switch ev.Topic {
	case bus.TopicGeneRecorded:
		if p, ok := ev.Payload.(bus.GeneRecordedEvent); ok {
			mb.metrics.GenesRecorded.Add(ctx, 1,
				metric.WithAttributes(otel.AttrCategory.String(p.Category)))
			mb.metrics.GeneScore.Record(ctx, p.Score)
		}
	case bus.TopicGeneSuppressed:
		if _, ok := ev.Payload.(bus.GeneSuppressedEvent); ok {
			mb.metrics.GenesSuppressed.Add(ctx, 1)
		}
	case bus.TopicGenePushed:
		if p, ok := ev.Payload.(bus.GenePushEvent); ok {
			mb.metrics.PushesReceived.Add(ctx, int64(p.Count),
				metric.WithAttributes(otel.AttrInstanceID.String(p.Source)))
		}
	case bus.TopicSyncPullCompleted:
		if p, ok := ev.Payload.(bus.SyncPullEvent); ok {
			mb.metrics.GenesPulled.Add(ctx, int64(p.Added+p.Updated))
			mb.metrics.PullDuration.Record(ctx, p.Duration.Seconds())
		}
	case bus.TopicSyncUploadCompleted:
		if p, ok := ev.Payload.(bus.SyncUploadEvent); ok {
			mb.metrics.GenesUploaded.Add(ctx, int64(p.Uploaded))
			mb.metrics.UploadFailures.Add(ctx, int64(p.Failed))
			mb.metrics.PendingUploads.Add(ctx, -int64(p.Uploaded))
		}
	case bus.TopicSyncUploadQueued:
		if _, ok := ev.Payload.(bus.UploadQueuedEvent); ok {
			mb.metrics.PendingUploads.Add(ctx, 1)
		}
	case bus.TopicPromptBuilt:
		if p, ok := ev.Payload.(bus.PromptBuiltEvent); ok {
			mb.metrics.PromptGenes.Add(ctx, int64(p.Genes))
		}
	case bus.TopicRetrievalCompleted:
		if p, ok := ev.Payload.(bus.RetrievalEvent); ok {
			mb.metrics.RetrievalHits.Add(ctx, int64(p.Hits))
		}
	}
}
