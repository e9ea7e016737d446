// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Provider identifies an upstream LLM vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists supported providers in display order.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool { return p == ProviderOpenAI || p == ProviderAnthropic }

// Default models per provider.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-5-sonnet-20240620"
)

// Sites the extension runs on.
const (
	SiteChatGPT = "ChatGPT"
	SiteClaude  = "Claude"
)

// ValidSite reports whether s is a supported chat site label.
func ValidSite(s string) bool { return s == SiteChatGPT || s == SiteClaude }

// Tones and detail levels accepted in user settings.
var (
	Tones   = []string{"neutral", "professional", "friendly", "persuasive", "academic"}
	Details = []string{"concise", "balanced", "exhaustive"}
)

// Settings is the per-user enhancement configuration.
type Settings struct {
	Enabled        bool     `json:"enabled"`
	Provider       Provider `json:"provider"`
	OpenAIModel    string   `json:"openaiModel"`
	AnthropicModel string   `json:"anthropicModel"`
	Tone           string   `json:"tone"`
	Detail         string   `json:"detail"`
	Audience       string   `json:"audience"`
}

// DefaultSettings returns settings assigned to newly created users.
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		Provider:       ProviderOpenAI,
		OpenAIModel:    DefaultOpenAIModel,
		AnthropicModel: DefaultAnthropicModel,
		Tone:           "neutral",
		Detail:         "balanced",
	}
}

// ModelFor returns the configured model for provider p, falling back to the default.
func (s Settings) ModelFor(p Provider) string {
	switch p {
	case ProviderAnthropic:
		if s.AnthropicModel != "" {
			return s.AnthropicModel
		}
		return DefaultAnthropicModel
	default:
		if s.OpenAIModel != "" {
			return s.OpenAIModel
		}
		return DefaultOpenAIModel
	}
}

// EncryptedCredential is one provider key slot. Empty Ciphertext means no key configured.
type EncryptedCredential struct {
	Ciphertext  string // hex
	IV          string // hex, 16 bytes
	AuthTag     string // hex, 16 bytes
	LastUpdated time.Time
	IsValid     bool
}

// Configured reports whether the slot holds ciphertext.
func (c EncryptedCredential) Configured() bool { return c.Ciphertext != "" }

// User represents an account created on first authenticated profile fetch.
type User struct {
	ID         uuid.UUID // PK
	ExternalID string    // identity provider subject, unique
	Email      string
	FirstName  string
	LastName   string
	PlanID     uuid.UUID
	Settings   Settings
	OpenAI     EncryptedCredential
	Anthropic  EncryptedCredential
	LastActive time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential returns the slot for provider p.
func (u *User) Credential(p Provider) EncryptedCredential {
	if p == ProviderAnthropic {
		return u.Anthropic
	}
	return u.OpenAI
}

// SetCredential replaces the slot for provider p.
func (u *User) SetCredential(p Provider, c EncryptedCredential) {
	if p == ProviderAnthropic {
		u.Anthropic = c
		return
	}
	u.OpenAI = c
}

// AuditAction is the kind of credential operation recorded in the audit log.
type AuditAction string

const (
	AuditCreated  AuditAction = "created"
	AuditUpdated  AuditAction = "updated"
	AuditRotated  AuditAction = "rotated"
	AuditDeleted  AuditAction = "deleted"
	AuditAccessed AuditAction = "accessed"
)

// MaxAuditEntries is the per-user audit log cap; older entries are dropped.
const MaxAuditEntries = 100

// CredentialAuditEntry is an immutable record of a credential operation.
type CredentialAuditEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Action    AuditAction
	Provider  Provider
	At        time.Time
	IP        string
	UserAgent string
	Success   bool
	Error     string
}

// Requester describes where a credential operation came from.
type Requester struct {
	IP        string
	UserAgent string
}

// UnlimitedSentinel is the plan limit value that means "no limit".
const UnlimitedSentinel = 999999

// Plan is a read-only catalog entry.
type Plan struct {
	ID           uuid.UUID
	Name         string
	DisplayName  string
	DailyLimit   int
	MonthlyLimit int
	Features     []string
	IsActive     bool
}

// DefaultPlanName is assigned to new users.
const DefaultPlanName = "free"

// UnlimitedDaily reports whether the daily limit is the unlimited sentinel.
func (p Plan) UnlimitedDaily() bool { return p.DailyLimit >= UnlimitedSentinel }

// UnlimitedMonthly reports whether the monthly limit is the unlimited sentinel.
func (p Plan) UnlimitedMonthly() bool { return p.MonthlyLimit >= UnlimitedSentinel }

// UsageLedgerEntry is one (user, day) counter row.
type UsageLedgerEntry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Day         string // YYYY-MM-DD
	Month       string // YYYY-MM
	DailyUsed   int
	MonthlyUsed int
	Requests    []UsageRequest
}

// UsageRequest is one concluded shared-key attempt appended to a ledger entry.
type UsageRequest struct {
	At           time.Time
	Provider     Provider
	Tokens       int
	Cost         float64
	Success      bool
	ErrorMessage string
}

// QuotaInfo is reported to clients; -1 means unlimited.
type QuotaInfo struct {
	DailyUsed        int    `json:"dailyUsed"`
	DailyLimit       int    `json:"dailyLimit"`
	DailyRemaining   int    `json:"dailyRemaining"`
	MonthlyUsed      int    `json:"monthlyUsed"`
	MonthlyLimit     int    `json:"monthlyLimit"`
	MonthlyRemaining int    `json:"monthlyRemaining"`
	PlanName         string `json:"planName"`
	IsUnlimited      bool   `json:"isUnlimited"`
}

// Method tells how an enhancement was produced.
type Method string

const (
	MethodTemplate Method = "template"
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
	// MethodFailed marks an attempt whose provider call failed with no fallback served.
	MethodFailed Method = "failed"
)

// RequestType classifies billing of a request.
type RequestType string

const (
	RequestFree     RequestType = "free"
	RequestPersonal RequestType = "personal"
)

// KeySource tells whose credential served a request.
type KeySource string

const (
	KeyUser   KeySource = "user"
	KeyShared KeySource = "shared"
)

// Cost is the accounting breakdown of an enhancement.
type Cost struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUSD"`
}

// EnhancementRecord is written once per resolved enhancement attempt and never mutated.
type EnhancementRecord struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	OriginalText   string
	EnhancedText   string
	Provider       Provider
	Model          string
	Site           string
	Settings       Settings
	Context        string
	Method         Method
	Tokens         int
	Cost           Cost
	ProcessingTime time.Duration
	RequestType    RequestType
	KeySource      KeySource
	CreatedAt      time.Time
}

// HistoryFilter narrows a history listing.
type HistoryFilter struct {
	Site     string
	Provider Provider
	Search   string
	Page     int
	Limit    int
}

// HistoryStats aggregates a user's history.
type HistoryStats struct {
	TotalPrompts      int     `json:"totalPrompts"`
	TotalTokens       int     `json:"totalTokens"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
	TotalCostUSD      float64 `json:"totalCostUSD"`
}

// UsageSplit counts requests by billing class for the quota view.
type UsageSplit struct {
	FreeDaily         int     `json:"freeDaily"`
	FreeMonthly       int     `json:"freeMonthly"`
	PersonalDaily     int     `json:"personalDaily"`
	PersonalMonthly   int     `json:"personalMonthly"`
	PersonalCostMonth float64 `json:"personalCostMonth"`
}
