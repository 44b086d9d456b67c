// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Delivery selects where a batch writes its output.
type Delivery string

const (
	DeliveryStream  Delivery = "stream"  // single file streamed to the response
	DeliveryArchive Delivery = "archive" // ZIP of all items streamed to the response
	DeliverySave    Delivery = "save"    // files written to the output directory
)

// ItemResult is the outcome of one task.
type ItemResult struct {
	URL      string `json:"url"`
	State    State  `json:"state"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResult collects per-item outcomes. A batch succeeds structurally
// even when individual items fail.
type BatchResult struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Format      Format       `json:"format"`
	Concurrency int          `json:"concurrency"`
	Items       []ItemResult `json:"results"`
}

// Succeeded counts completed items.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, it := range b.Items {
		if it.State == StateCompleted {
			n++
		}
	}
	return n
}

// Failed counts items that did not complete.
func (b *BatchResult) Failed() int { return len(b.Items) - b.Succeeded() }
