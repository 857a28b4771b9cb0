package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of helpdesk departments a ticket can be routed to.
type Category string

const (
	CategoryIT      Category = "IT"
	CategoryHR      Category = "HR"
	CategoryFinance Category = "Finance"
	CategoryAdmin   Category = "Admin"
	CategoryOther   Category = "Other"
)

// Categories lists every category in routing priority order.
var Categories = []Category{CategoryIT, CategoryHR, CategoryFinance, CategoryAdmin, CategoryOther}

// ParseCategory matches s against the category names ignoring case.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is one of the canonical category names.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

type ClassificationSource string

const (
	SourceModel    ClassificationSource = "model"
	SourceFallback ClassificationSource = "fallback"
)

type ClassificationResult struct {
	Category Category             `json:"category"`
	Source   ClassificationSource `json:"source"`
}

// NoPolicyFound is the document text carried when a category has no policy.
const NoPolicyFound = "No policy found"

type RetrievedContext struct {
	DocumentID   string `json:"documentId,omitempty"`
	DocumentText string `json:"documentText"`
	Found        bool   `json:"found"`
}

// NotFoundContext returns the sentinel context.
func NotFoundContext() RetrievedContext {
	return RetrievedContext{DocumentText: NoPolicyFound}
}

type GeneratedReply struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

// PolicyDocument is one knowledge-base entry registered for a category.
type PolicyDocument struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text"`
	Priority int      `json:"priority"`
}

// EscalationThreshold is the score below which a reply goes to a human.
const EscalationThreshold = 0.6

// EscalationMessage is attached to results that need human review.
const EscalationMessage = "We are forwarding this to a human support agent for further review."

type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "High"
	BandMedium ConfidenceBand = "Medium"
	BandLow    ConfidenceBand = "Low"
)

type ConfidenceScore struct {
	Score    float64 `json:"score"`
	Escalate bool    `json:"escalate"`
}

// NewConfidenceScore clamps v to [0,1], rounds it to two decimals and derives
// the escalation decision from the rounded value.
func NewConfidenceScore(v float64) ConfidenceScore {
	if math.IsNaN(v) {
		v = 0
	}
	v = math.Max(0, math.Min(1, v))
	v = math.Round(v*100) / 100
	return ConfidenceScore{Score: v, Escalate: v < EscalationThreshold}
}

func (s ConfidenceScore) Band() ConfidenceBand {
	switch {
	case s.Score >= 0.8:
		return BandHigh
	case s.Score >= EscalationThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// PipelineResult is the assembled outcome for one ticket.
type PipelineResult struct {
	TicketID          uuid.UUID            `json:"ticketId"`
	Ticket            string               `json:"ticket"`
	Classification    ClassificationResult `json:"classification"`
	Context           RetrievedContext     `json:"context"`
	Reply             GeneratedReply       `json:"reply"`
	Confidence        ConfidenceScore      `json:"confidence"`
	Escalate          bool                 `json:"escalate"`
	EscalationMessage string               `json:"escalationMessage,omitempty"`
	Timestamp         time.Time            `json:"timestamp"`
}

// TicketStatistics summarizes processed tickets.
type TicketStatistics struct {
	TotalTickets      int              `json:"totalTickets"`
	CategoryBreakdown map[Category]int `json:"categoryBreakdown"`
	AverageConfidence float64          `json:"averageConfidence"`
	EscalationRate    float64          `json:"escalationRate"`
	Recent            []TicketSummary  `json:"recent"`
}

type TicketSummary struct {
	TicketID   string    `json:"ticketId"`
	Ticket     string    `json:"ticket"`
	Category   Category  `json:"category"`
	Confidence float64   `json:"confidence"`
	Escalate   bool      `json:"escalate"`
	Timestamp  time.Time `json:"timestamp"`
}
