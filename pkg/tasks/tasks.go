// Package tasks defines the structure for tasks that are exchanged over Kafka.
package tasks

// ReingestTask asks the service to reload an archived raw upload into the relational store.
type ReingestTask struct {
	ArchiveKey  string `json:"archive_key"`
	RequestedBy string `json:"requested_by,omitempty"`
}
