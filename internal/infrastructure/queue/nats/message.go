package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type searchRequested struct {
	JobID       string    `json:"job_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func encodeRequest(jobID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("encode search request: empty job id")
	}
	raw, err := json.Marshal(searchRequested{JobID: jobID, RequestedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	return raw, nil
}

// decodeRequest accepts the JSON envelope and, for manual publishes, a bare job id.
func decodeRequest(data []byte) (searchRequested, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return searchRequested{}, errors.New("decode search request: empty message")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return searchRequested{JobID: trimmed}, nil
	}
	var req searchRequested
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return searchRequested{}, fmt.Errorf("decode search request: %w", err)
	}
	if req.JobID == "" {
		return searchRequested{}, errors.New("decode search request: missing job_id")
	}
	return req, nil
}
