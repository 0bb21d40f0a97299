// Package metrics provides in-process pipeline metrics collection.
//
// The Collector accumulates counters across job executions. It is a
// leaf package with no internal dependencies. All increment methods
// are nil-receiver safe so wiring a collector stays optional.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Job lifecycle
	JobsStarted      int64
	JobsCommitted    int64
	JobsDuplicate    int64
	JobsInProgress   int64
	JobsRetryable    int64
	JobsRejected     int64
	JobsDeadLettered int64

	// Identification / resolution
	ItemsIdentified int64
	ItemsDropped    int64
	ItemsResolved   int64
	ItemsUnresolved int64

	// External calls
	LookupCalls     int64
	LookupFailures  int64
	NotifyFailures  int64
	ArchiveFailures int64

	// Dimensions (informational, set at construction)
	QueueURL string
	Worker   string
}

// Collector accumulates pipeline metrics. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	jobsStarted      int64
	jobsCommitted    int64
	jobsDuplicate    int64
	jobsInProgress   int64
	jobsRetryable    int64
	jobsRejected     int64
	jobsDeadLettered int64

	itemsIdentified int64
	itemsDropped    int64
	itemsResolved   int64
	itemsUnresolved int64

	lookupCalls     int64
	lookupFailures  int64
	notifyFailures  int64
	archiveFailures int64

	queueURL string
	worker   string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(queueURL, worker string) *Collector {
	return &Collector{queueURL: queueURL, worker: worker}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// IncJobStarted records a job pull.
func (c *Collector) IncJobStarted() {
	if c == nil {
		return
	}
	c.inc(&c.jobsStarted)
}

// IncJobCommitted records a fully committed job.
func (c *Collector) IncJobCommitted() {
	if c == nil {
		return
	}
	c.inc(&c.jobsCommitted)
}

// IncJobDuplicate records a short-circuited duplicate delivery.
func (c *Collector) IncJobDuplicate() {
	if c == nil {
		return
	}
	c.inc(&c.jobsDuplicate)
}

// IncJobInProgress records a delivery that found a live claim.
func (c *Collector) IncJobInProgress() {
	if c == nil {
		return
	}
	c.inc(&c.jobsInProgress)
}

// IncJobRetryable records a transiently failed attempt.
func (c *Collector) IncJobRetryable() {
	if c == nil {
		return
	}
	c.inc(&c.jobsRetryable)
}

// IncJobRejected records a permanently unprocessable job.
func (c *Collector) IncJobRejected() {
	if c == nil {
		return
	}
	c.inc(&c.jobsRejected)
}

// IncJobDeadLettered records a message routed to the dead-letter queue
// by this worker (validation and rejection paths).
func (c *Collector) IncJobDeadLettered() {
	if c == nil {
		return
	}
	c.inc(&c.jobsDeadLettered)
}

// AddItemsIdentified records identified food items.
func (c *Collector) AddItemsIdentified(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsIdentified += int64(n)
	c.mu.Unlock()
}

// AddItemsDropped records identification outputs dropped by schema
// validation.
func (c *Collector) AddItemsDropped(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsDropped += int64(n)
	c.mu.Unlock()
}

// IncItemResolved records one successfully resolved item.
func (c *Collector) IncItemResolved() {
	if c == nil {
		return
	}
	c.inc(&c.itemsResolved)
}

// IncItemUnresolved records one item that failed resolution.
func (c *Collector) IncItemUnresolved() {
	if c == nil {
		return
	}
	c.inc(&c.itemsUnresolved)
}

// IncLookupCall records one nutrition database call.
func (c *Collector) IncLookupCall() {
	if c == nil {
		return
	}
	c.inc(&c.lookupCalls)
}

// IncLookupFailure records one failed nutrition database call.
func (c *Collector) IncLookupFailure() {
	if c == nil {
		return
	}
	c.inc(&c.lookupFailures)
}

// IncNotifyFailure records one failed user notification.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailures)
}

// IncArchiveFailure records one failed image archive write.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.inc(&c.archiveFailures)
}

// Snapshot returns an atomic copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		JobsStarted:      c.jobsStarted,
		JobsCommitted:    c.jobsCommitted,
		JobsDuplicate:    c.jobsDuplicate,
		JobsInProgress:   c.jobsInProgress,
		JobsRetryable:    c.jobsRetryable,
		JobsRejected:     c.jobsRejected,
		JobsDeadLettered: c.jobsDeadLettered,
		ItemsIdentified:  c.itemsIdentified,
		ItemsDropped:     c.itemsDropped,
		ItemsResolved:    c.itemsResolved,
		ItemsUnresolved:  c.itemsUnresolved,
		LookupCalls:      c.lookupCalls,
		LookupFailures:   c.lookupFailures,
		NotifyFailures:   c.notifyFailures,
		ArchiveFailures:  c.archiveFailures,
		QueueURL:         c.queueURL,
		Worker:           c.worker,
	}
}
