package bus

import "time"

// Gene lifecycle topics.
const (
	TopicGeneRecorded   = "gene.recorded"
	TopicGeneSuppressed = "gene.suppressed"
	TopicGenePushed     = "gene.push_received"
)

// Sync engine topics.
const (
	TopicSyncPullCompleted   = "sync.pull_completed"
	TopicSyncUploadCompleted = "sync.upload_completed"
	TopicSyncUploadQueued    = "sync.upload_queued"
)

// Retrieval topics.
const (
	TopicPromptBuilt        = "inject.prompt_built"
	TopicRetrievalCompleted = "inject.retrieval_completed"
)

// GeneRecordedEvent is published when a gene is persisted.
type GeneRecordedEvent struct {
	GeneID   string  // Gene ID
	Category string  // Gene category
	Score    float64 // Admission score after any dedup discount
}

// GeneSuppressedEvent is published when a candidate is dropped.
type GeneSuppressedEvent struct {
	Reason     string  // "low_score" or "duplicate"
	Score      float64 // Evaluated score
	Similarity float64 // Best similarity when Reason is "duplicate"
}

// GenePushEvent is published when genes arrive over the messaging channel.
type GenePushEvent struct {
	Source string // Sending instance
	Count  int    // Genes applied
}

// SyncPullEvent is published after a pull completes.
type SyncPullEvent struct {
	Added    int           // New genes upserted
	Updated  int           // Existing genes overwritten
	Deleted  int           // Platform genes removed
	Duration time.Duration // Wall time of the whole pull
}

// SyncUploadEvent is published after an upload drain.
type SyncUploadEvent struct {
	Uploaded int // Genes acknowledged by the platform
	Failed   int // Genes the platform reported failures for
}

// UploadQueuedEvent is published when a gene enters the pending queue.
type UploadQueuedEvent struct {
	GeneID string
}

// PromptBuiltEvent is published after context assembly.
type PromptBuiltEvent struct {
	AgentID string
	Genes   int // Genes rendered into the block
}

// RetrievalEvent is published after a relevance search.
type RetrievalEvent struct {
	AgentID string
	Hits    int // Genes returned
}
