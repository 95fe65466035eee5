package models

import (
	"fmt"
	"time"
)

// MediaKind is the declared format of an uploaded file.
type MediaKind string

const (
	MediaKindPDF   MediaKind = "pdf"
	MediaKindImage MediaKind = "image"
)

// DocumentKind is what extraction decided the file actually is.
type DocumentKind string

const (
	KindDigital DocumentKind = "digital"
	KindScanned DocumentKind = "scanned"
	KindImage   DocumentKind = "image"
	KindUnknown DocumentKind = "unknown"
)

// Status 文档处理状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// TransitionError is returned when a document is asked to move along an
// edge the state machine does not have.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Document 文档记录
type Document struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Filename      string    `json:"filename"`
	FileKey       string    `json:"file_key"`
	FileSize      int64     `json:"file_size"`
	MediaKind     MediaKind `json:"media_kind"`
	Status        Status    `json:"status"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	RedactedText  string    `json:"redacted_text,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Tags          []string  `json:"tags"`
	Metadata      Metadata  `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Embedding != nil {
		c.Embedding = append([]float32(nil), d.Embedding...)
	}
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	c.Metadata = d.Metadata.Clone()
	return &c
}

// Searchable reports whether retrieval may consider the document.
func (d *Document) Searchable() bool {
	return d.Status == StatusCompleted && len(d.Embedding) > 0
}

// MaxExtraKeys bounds the free-form diagnostics map.
const MaxExtraKeys = 32

// Metadata holds the typed per-stage diagnostics plus a bounded
// extension map for anything stage specific.
type Metadata struct {
	Error       string     `json:"error,omitempty"`
	FailedStage Stage      `json:"failed_stage,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	DocumentKind     DocumentKind `json:"document_kind,omitempty"`
	ExtractionMethod string       `json:"extraction_method,omitempty"`
	PageCount        int          `json:"page_count,omitempty"`

	PIISummary        map[string]int `json:"pii_summary,omitempty"`
	EntitiesFound     int            `json:"entities_found"`
	Sensitive         bool           `json:"is_sensitive"`
	RedactionDegraded bool           `json:"redaction_degraded,omitempty"`

	TagScores []LabelScore `json:"tag_scores,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// SetExtra stores a diagnostic value. It returns false once the map is full
// and key is new.
func (m *Metadata) SetExtra(key, value string) bool {
	if m.Extra == nil {
		m.Extra = make(map[string]string)
	}
	if _, ok := m.Extra[key]; !ok && len(m.Extra) >= MaxExtraKeys {
		return false
	}
	m.Extra[key] = value
	return true
}

func (m Metadata) Clone() Metadata {
	c := m
	if m.PIISummary != nil {
		c.PIISummary = make(map[string]int, len(m.PIISummary))
		for k, v := range m.PIISummary {
			c.PIISummary[k] = v
		}
	}
	if m.TagScores != nil {
		c.TagScores = append([]LabelScore(nil), m.TagScores...)
	}
	if m.Extra != nil {
		c.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	if m.FailedAt != nil {
		t := *m.FailedAt
		c.FailedAt = &t
	}
	if m.ProcessedAt != nil {
		t := *m.ProcessedAt
		c.ProcessedAt = &t
	}
	return c
}
