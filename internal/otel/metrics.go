package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the gene store's metric instruments.
type Metrics struct {
	GenesRecorded   metric.Int64Counter
	GenesSuppressed metric.Int64Counter
	GeneScore       metric.Float64Histogram
	PromptGenes     metric.Int64Counter
	RetrievalHits   metric.Int64Counter
	PullDuration    metric.Float64Histogram
	GenesPulled     metric.Int64Counter
	GenesUploaded   metric.Int64Counter
	UploadFailures  metric.Int64Counter
	PushesReceived  metric.Int64Counter
	PendingUploads  metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.GenesRecorded, err = meter.Int64Counter("genebank.genes.recorded",
		metric.WithDescription("Genes admitted to the store"),
	)
	if err != nil {
		return nil, err
	}

	m.GenesSuppressed, err = meter.Int64Counter("genebank.genes.suppressed",
		metric.WithDescription("Candidate genes rejected at admission"),
	)
	if err != nil {
		return nil, err
	}

	m.GeneScore, err = meter.Float64Histogram("genebank.genes.score",
		metric.WithDescription("Admission scores of recorded genes"),
	)
	if err != nil {
		return nil, err
	}

	m.PromptGenes, err = meter.Int64Counter("genebank.prompt.genes",
		metric.WithDescription("Genes injected into prompts"),
	)
	if err != nil {
		return nil, err
	}

	m.RetrievalHits, err = meter.Int64Counter("genebank.retrieval.hits",
		metric.WithDescription("Genes returned by relevance lookups"),
	)
	if err != nil {
		return nil, err
	}

	m.PullDuration, err = meter.Float64Histogram("genebank.sync.pull.duration",
		metric.WithDescription("Platform pull duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.GenesPulled, err = meter.Int64Counter("genebank.sync.pulled",
		metric.WithDescription("Genes added or updated by platform pulls"),
	)
	if err != nil {
		return nil, err
	}

	m.GenesUploaded, err = meter.Int64Counter("genebank.sync.uploaded",
		metric.WithDescription("Genes acknowledged by platform uploads"),
	)
	if err != nil {
		return nil, err
	}

	m.UploadFailures, err = meter.Int64Counter("genebank.sync.upload_failures",
		metric.WithDescription("Genes the platform rejected during upload"),
	)
	if err != nil {
		return nil, err
	}

	m.PushesReceived, err = meter.Int64Counter("genebank.sync.pushes_received",
		metric.WithDescription("Genes applied from instance pushes"),
	)
	if err != nil {
		return nil, err
	}

	m.PendingUploads, err = meter.Int64UpDownCounter("genebank.sync.pending",
		metric.WithDescription("Genes queued for upload"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
