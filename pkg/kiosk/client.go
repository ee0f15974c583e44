package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client submits scans to the attendance API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client against the API base URL, e.g.
// "http://localhost:8080/api/v1".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type scanPayload struct {
	StudentRFIDUID string `json:"student_rfid_uid"`
	TimeSlotID     string `json:"time_slot_id"`
}

type scanEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit posts one scan and maps the HTTP status to a serializer outcome.
func (c *Client) Submit(ctx context.Context, scan Scan) Result {
	body, err := json.Marshal(scanPayload{
		StudentRFIDUID: scan.RFIDUID,
		TimeSlotID:     scan.TimeSlotID,
	})
	if err != nil {
		return Result{Scan: scan, Outcome: OutcomeError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attendance", bytes.NewReader(body))
	if err != nil {
		return Result{Scan: scan, Outcome: OutcomeError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Scan: scan, Outcome: OutcomeError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Result{Scan: scan, Outcome: OutcomeAccepted, Message: "recorded"}
	}

	var envelope scanEnvelope
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
		message = envelope.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return Result{Scan: scan, Outcome: OutcomeDuplicate, Message: message}
	case http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return Result{Scan: scan, Outcome: OutcomeRejected, Message: message}
	default:
		return Result{Scan: scan, Outcome: OutcomeError, Message: message, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// Stats polls the slot counters shown on the kiosk screen.
func (c *Client) Stats(ctx context.Context, timeSlotID string) (total, present int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/attendance/stats/"+timeSlotID, nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Total   int `json:"total"`
			Present int `json:"present"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, err
	}
	return payload.Data.Total, payload.Data.Present, nil
}
