package item

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusNew       Status = "new"
	StatusRewriting Status = "rewriting"
	StatusRewritten Status = "rewritten"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PartStatus represents the lifecycle of a work item part.
type PartStatus string

const (
	PartStatusPending        PartStatus = "pending"
	PartStatusMediaGenerated PartStatus = "media_generated"
	PartStatusCompleted      PartStatus = "completed"
	PartStatusFailed         PartStatus = "failed"
)

// ArtifactKind distinguishes audio and video assets.
type ArtifactKind string

const (
	ArtifactAudio ArtifactKind = "audio"
	ArtifactVideo ArtifactKind = "video"
)

// ArtifactStatus represents the lifecycle of a media artifact.
type ArtifactStatus string

const (
	ArtifactStatusGenerated ArtifactStatus = "generated"
	ArtifactStatusUploaded  ArtifactStatus = "uploaded"
	ArtifactStatusEvicted   ArtifactStatus = "evicted"
)

// QueueStatus represents the lifecycle of a publish queue entry.
type QueueStatus string

const (
	QueueStatusQueued   QueueStatus = "queued"
	QueueStatusUploaded QueueStatus = "uploaded"
	QueueStatusFailed   QueueStatus = "failed"
)

// RunStatus represents the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

var allStatuses = []Status{
	StatusNew,
	StatusRewriting,
	StatusRewritten,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transientStatuses are statuses a crashed run may leave behind. Items found
// in these states at run start are resumable, not failed.
var transientStatuses = map[Status]struct{}{
	StatusRewriting: {},
}

var legalTransitions = map[Status][]Status{
	StatusNew:       {StatusRewriting, StatusFailed},
	StatusRewriting: {StatusRewritten, StatusFailed},
	StatusRewritten: {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	// Failed items may be manually reprocessed.
	StatusFailed: {StatusNew},
}

var legalPartTransitions = map[PartStatus][]PartStatus{
	PartStatusPending:        {PartStatusMediaGenerated, PartStatusFailed},
	PartStatusMediaGenerated: {PartStatusCompleted, PartStatusFailed},
	PartStatusCompleted:      {},
	PartStatusFailed:         {PartStatusPending},
}

// WorkItem is one source text candidate entering the pipeline.
type WorkItem struct {
	ID             int64
	ExternalID     string
	Origin         string
	Title          string
	Body           string
	Author         string
	Score          int
	Priority       int
	RewrittenTitle string
	RewrittenBody  string
	Tags           []string
	WordCount      int
	// EstimatedDuration is the narration estimate for the whole rewritten body.
	EstimatedDuration int
	PartCount         int
	Status            Status
	ErrorMessage      string
	RetryCount        int
	DiscoveredAt      time.Time
	RewrittenAt       *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Part is one duration-bounded segment of a work item's rewritten text.
type Part struct {
	ID           int64
	ItemID       int64
	PartNumber   int
	TotalParts   int
	Body         string
	WordCount    int
	Title        string
	Caption      string
	Status       PartStatus
	ErrorMessage string
	RetryCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Artifact is a generated audio or video asset tied to a part.
type Artifact struct {
	ID              int64
	PartID          int64
	Kind            ArtifactKind
	LocalPath       string
	RemoteID        string
	RemoteURL       string
	DurationSeconds float64
	SizeBytes       int64
	Status          ArtifactStatus
	CreatedAt       time.Time
	UploadedAt      *time.Time
	EvictedAt       *time.Time
}

// Reachable reports whether the artifact still has a retrievable copy.
func (a Artifact) Reachable() bool {
	return strings.TrimSpace(a.LocalPath) != "" || strings.TrimSpace(a.RemoteID) != ""
}

// QueueEntry is an artifact awaiting admission to the publish service.
type QueueEntry struct {
	ID           int64
	ArtifactID   int64
	Title        string
	Description  string
	Tags         []string
	Priority     int
	Status       QueueStatus
	ExternalID   string
	ExternalURL  string
	ErrorMessage string
	RetryCount   int
	QueuedAt     time.Time
	UploadedAt   *time.Time
}

// Run is one end-to-end execution of the pipeline across a batch of items.
type Run struct {
	ID               string
	Kind             string
	ItemsDiscovered  int
	ItemsProcessed   int
	ItemsFailed      int
	ArtifactsCreated int
	ArtifactsFailed  int
	Status           RunStatus
	CurrentStage     string
	CurrentItemID    int64
	ErrorMessage     string
	StartedAt        time.Time
	CompletedAt      *time.Time
	LastHeartbeat    time.Time
}

// AllStatuses returns the ordered list of known work item statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether moving a work item from one status to
// another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPart reports whether moving a part from one status to
// another is legal. A part never regresses from completed.
func CanTransitionPart(from, to PartStatus) bool {
	for _, next := range legalPartTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTransient reports whether a status marks in-flight work that a restarted
// run should pick back up.
func IsTransient(status Status) bool {
	_, ok := transientStatuses[status]
	return ok
}

// SetFailed marks the item as failed with the given error message.
func (i *WorkItem) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.RetryCount++
}

// SetFailed marks the part as failed with the given error message.
func (p *Part) SetFailed(message string) {
	p.Status = PartStatusFailed
	p.ErrorMessage = message
	p.RetryCount++
}

// Terminal reports whether all parts have reached completed or failed.
// Partial success is valid; the parent does not require all-or-nothing.
func Terminal(parts []*Part) bool {
	for _, part := range parts {
		switch part.Status {
		case PartStatusCompleted, PartStatusFailed:
		default:
			return false
		}
	}
	return true
}
