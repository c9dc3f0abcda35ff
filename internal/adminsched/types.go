// Package adminsched implements the multi-queue admin-job scheduler: four
// FIFO queues (Preview, Publish, UnpublishLive, UnpublishPreview), a
// bounded in-flight set, bulk-job submission and polling, and
// batch-vs-global failure classification.
package adminsched

import "time"

// QueueName identifies one of the four pipeline stages.
type QueueName string

const (
	QueuePreview          QueueName = "preview"
	QueuePublish          QueueName = "publish"
	QueueUnpublishLive    QueueName = "unpublish_live"
	QueueUnpublishPreview QueueName = "unpublish_preview"
)

// InFlightCapacity bounds concurrent batches across all four queues.
const InFlightCapacity = 2

// TickInterval is the scheduler loop's polling period.
const TickInterval = 1000 * time.Millisecond

// BatchRecord is one SKU's progress through the preview/publish or
// unpublish-live/unpublish-preview lifecycle.
type BatchRecord struct {
	SKU                  string     `json:"sku"`
	Path                 string     `json:"path"`
	RenderedAt           time.Time  `json:"rendered_at"`
	PreviewedAt          *time.Time `json:"previewed_at,omitempty"`
	PublishedAt          *time.Time `json:"published_at,omitempty"`
	LiveUnpublishedAt    *time.Time `json:"live_unpublished_at,omitempty"`
	PreviewUnpublishedAt *time.Time `json:"preview_unpublished_at,omitempty"`
	Failed               bool       `json:"failed,omitempty"`
	Error                string     `json:"error,omitempty"`
}

// Batch is a set of records submitted together, identified by locale and a
// caller-assigned sequence number.
type Batch struct {
	Records []BatchRecord
	Locale  string
	BatchNo int
}

// Result is what PreviewAndPublish/UnpublishAndDelete's channel delivers
// once the batch reaches a terminal stage.
type Result struct {
	Batch
	Failed bool
}

// JobHandle is the admin API's asynchronous job reference.
type JobHandle struct {
	Topic   string
	Name    string
	State   string // "running" | "stopped"
	Details struct {
		Processed int
		Total     int
		Failed    int
	}
	DetailsLink string
}

// PathOutcome is one path's result within a job's details listing.
type PathOutcome struct {
	Path   string
	Status int
}
