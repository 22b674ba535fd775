// Package eventmodel defines the agent's two record shapes — tailed log
// lines and file-integrity events — and the durable queue entry that wraps
// either one for delivery. It replaces the "a dict with certain keys"
// shape of the original implementation with a tagged sum: every entry on
// the wire or on disk carries an explicit Kind discriminator alongside its
// serialized payload.
package eventmodel

import "encoding/json"

// Kind discriminates the payload carried by a BufferedEntry.
type Kind string

const (
	KindLog Kind = "log"
	KindFIM Kind = "fim"
)

// AgentSource is the constant source identity stamped on every record.
const AgentSource = "lognog-in"

// LogRecord is one text line read from one watched file at one instant.
type LogRecord struct {
	Timestamp  string            `json:"timestamp"`
	Hostname   string            `json:"hostname"`
	Source     string            `json:"source"`
	SourceType string            `json:"source_type"`
	FilePath   string            `json:"file_path"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata"`
}

// FIMEventType enumerates the kinds of file-integrity change a FIMRecord
// can report.
type FIMEventType string

const (
	FIMCreated  FIMEventType = "created"
	FIMModified FIMEventType = "modified"
	FIMDeleted  FIMEventType = "deleted"
)

// FIMRecord extends the log record shape with integrity-specific fields.
// PreviousHash and CurrentHash are algorithm-prefixed digests (e.g.
// "sha256:<hex>"); either may be nil ("created" has no previous, "deleted"
// has no current).
type FIMRecord struct {
	Timestamp       string                 `json:"timestamp"`
	Hostname        string                 `json:"hostname"`
	Source          string                 `json:"source"`
	SourceType      string                 `json:"source_type"`
	EventType       FIMEventType           `json:"event_type"`
	FilePath        string                 `json:"file_path"`
	PreviousHash    *string                `json:"previous_hash"`
	CurrentHash     *string                `json:"current_hash"`
	FileOwner       string                 `json:"file_owner"`
	FilePermissions string                 `json:"file_permissions"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// BufferedEntry is one record awaiting delivery, as returned by the
// durable store's NextBatch. ID is the monotonically increasing insertion
// sequence; it defines send order.
type BufferedEntry struct {
	ID       uint64
	Kind     Kind
	Payload  json.RawMessage
	Attempts int
}
