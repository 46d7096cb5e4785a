package models

import "time"

// Source system constants.
const (
	SourceJira       = "jira"
	SourceConfluence = "confluence"
)

// DocumentRef identifies an upstream document without its content.
type DocumentRef struct {
	SourceSystem string    `json:"source_system"`
	DocumentID   string    `json:"document_id"`
	LastModified time.Time `json:"last_modified"`
}

// Document is an immutable snapshot of upstream content taken at fetch time.
// The pipeline never mutates a Document.
type Document struct {
	SourceSystem string    `json:"source_system"`
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content"`
	Fingerprint  string    `json:"fingerprint"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url,omitempty"`
}

// Ref returns the reference for this document snapshot.
func (d *Document) Ref() DocumentRef {
	return DocumentRef{
		SourceSystem: d.SourceSystem,
		DocumentID:   d.DocumentID,
		LastModified: d.LastModified,
	}
}

// ChangeEvent is a "changed document" notification. Poll loop and webhook
// handler both produce these; the driver is the single consumer.
type ChangeEvent struct {
	SourceSystem string `json:"source_system"`
	DocumentID   string `json:"document_id"`
	// Fingerprint is set when the producer already knows the content hash
	// (webhook deliveries); used for at-least-once dedup.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// DedupKey is the identity used to deduplicate at-least-once deliveries.
func (e ChangeEvent) DedupKey() string {
	return e.SourceSystem + ":" + e.DocumentID + ":" + e.Fingerprint
}
