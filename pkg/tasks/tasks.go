// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// IngestTask asks a consumer to rebuild the knowledge base.
type IngestTask struct {
	TaskID      string    `json:"task_id"`
	Source      string    `json:"source"` // "dir" 或 "minio"
	DocTypes    []string  `json:"doc_types,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
