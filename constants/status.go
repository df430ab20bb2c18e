package constants

// ReviewStatus is the canonical review state for rows in failure_log.
type ReviewStatus string

// Stable values (store these exact strings in DB).
const (
	ReviewPending  ReviewStatus = "pending"  // awaiting human review
	ReviewReviewed ReviewStatus = "reviewed" // looked at, not yet resolved
	ReviewResolved ReviewStatus = "resolved" // closed out
)
