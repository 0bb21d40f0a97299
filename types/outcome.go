package types

// JobStatus is the terminal status of one pipeline execution.
type JobStatus string

const (
	// JobCommitted means all side effects landed and the dedup record
	// was committed; the message must be acknowledged.
	JobCommitted JobStatus = "committed"
	// JobDuplicate means a completed record already existed; the
	// message must be acknowledged without repeating side effects.
	JobDuplicate JobStatus = "duplicate"
	// JobInProgress means another attempt holds a fresh claim; the
	// message must be left for redelivery after the visibility timeout.
	JobInProgress JobStatus = "in_progress"
	// JobRetryable means the attempt failed transiently after the
	// claim was released; the message must be left for redelivery.
	JobRetryable JobStatus = "retryable"
	// JobRejected means the job is permanently unprocessable
	// (validation or empty identification); the message must be routed
	// to the dead-letter path without spending retry budget.
	JobRejected JobStatus = "rejected"
)

// JobOutcome is the tagged result of one pipeline execution. The queue
// consumer translates it into acknowledge / leave / dead-letter.
type JobOutcome struct {
	// Status is the terminal status.
	Status JobStatus
	// Summary is the meal summary, set only on JobCommitted and for
	// cache replays on JobDuplicate.
	Summary *MealSummary
	// Items are the resolved items, set only on JobCommitted.
	Items []ResolvedNutrition
	// Err is the classified failure, set on JobRetryable and JobRejected.
	Err error
}

// Ack reports whether the message should be deleted from the queue.
func (o *JobOutcome) Ack() bool {
	return o.Status == JobCommitted || o.Status == JobDuplicate
}
