package domain

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusDead     Status = "dead"
)

// Terminal reports whether a job in this status is excluded from further
// claims.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDead
}

type Provider string

const (
	ProviderMeta    Provider = "meta"
	ProviderGupshup Provider = "gupshup"
)

// SenderKey identifies one outbound channel: the unit of rate limiting and
// concurrency gating. All jobs sharing a key compete for the same token
// bucket and the same semaphore slots.
type SenderKey struct {
	Provider        Provider
	SenderChannelID string
}

func (k SenderKey) String() string {
	return string(k.Provider) + ":" + k.SenderChannelID
}

// DispatchJob is one outbound message to be delivered. Rows are created by an
// upstream enqueuer in pending state and are mutated only by the claim
// producer, the dispatch consumers and the lease reaper.
//
// NextAttemptAt is overloaded by status: while in_flight it holds the lease
// expiry; while pending or failed it holds the earliest retry time (nil means
// immediately due).
type DispatchJob struct {
	ID              string
	BusinessID      string
	CampaignID      string
	RecipientID     string
	Provider        Provider
	SenderChannelID string

	TemplateName       string
	LanguageCode       string
	MediaType          string
	HeaderMediaURL     string
	ResolvedParameters []byte
	ResolvedButtonURLs []byte
	MessageBody        string

	IdempotencyKey string

	Status        Status
	Attempt       int
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
}

func (j *DispatchJob) SenderKey() SenderKey {
	return SenderKey{Provider: j.Provider, SenderChannelID: j.SenderChannelID}
}
