package models

import "time"

// Envelope is the queue record carrying one message between the connector
// and its link partners.
type Envelope struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	LinkType  LinkType         `json:"link_type"`
	Timestamp time.Time        `json:"timestamp"`
	Message   Message          `json:"message"`
	Metadata  EnvelopeMetadata `json:"metadata"`
}

type EnvelopeMetadata struct {
	TraceID string                 `json:"trace_id,omitempty"`
	Target  string                 `json:"target,omitempty"`
	DLQ     map[string]interface{} `json:"dlq,omitempty"`
}
