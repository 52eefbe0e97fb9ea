package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleID accepts a JSON string or number. Issue numbers arrive both ways.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("document identity must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// SummarizeRequest is the body of POST /api/v1/summaries.
type SummarizeRequest struct {
	DocumentLocator  string     `json:"documentLocator" binding:"required"`
	DocumentIdentity FlexibleID `json:"documentIdentity" binding:"required"`
	VolumeNumber     int        `json:"volumeNumber,omitempty" binding:"omitempty,min=1"`
	MaxWords         int        `json:"maxWords,omitempty" binding:"omitempty,min=1"`
	Stream           bool       `json:"stream,omitempty"`
}

// RecordSummarizeRequest is the optional body of the per-record summarize
// endpoints.
type RecordSummarizeRequest struct {
	MaxWords int  `json:"maxWords,omitempty" binding:"omitempty,min=1"`
	Stream   bool `json:"stream,omitempty"`
}

// AsyncSummarizeResponse acknowledges an enqueued summarization.
type AsyncSummarizeResponse struct {
	DocID   string `json:"doc_id"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
