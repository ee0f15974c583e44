package kiosk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSubmitter struct {
	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	results  map[string]Result
	order    []string
}

func (s *scriptedSubmitter) Submit(_ context.Context, scan Scan) Result {
	current := atomic.AddInt32(&s.inFlight, 1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, current) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	s.order = append(s.order, scan.RFIDUID)
	result, ok := s.results[scan.RFIDUID]
	s.mu.Unlock()
	if !ok {
		result = Result{Scan: scan, Outcome: OutcomeAccepted}
	}
	result.Scan = scan
	return result
}

func collectResults() (func(Result), func(n int, timeout time.Duration) []Result) {
	ch := make(chan Result, 64)
	record := func(r Result) { ch <- r }
	wait := func(n int, timeout time.Duration) []Result {
		var out []Result
		deadline := time.After(timeout)
		for len(out) < n {
			select {
			case r := <-ch:
				out = append(out, r)
			case <-deadline:
				return out
			}
		}
		return out
	}
	return record, wait
}

func TestSerializerSubmitsOneAtATime(t *testing.T) {
	submitter := &scriptedSubmitter{delay: 20 * time.Millisecond, results: map[string]Result{}}
	record, wait := collectResults()
	s := NewSerializer(submitter, SerializerConfig{RFIDLength: 10, OnResult: record})
	s.Start(context.Background())
	defer s.Stop()

	require.True(t, s.Offer("0000000001", "slot-1"))
	require.True(t, s.Offer("0000000002", "slot-1"))
	require.True(t, s.Offer("0000000003", "slot-1"))

	results := wait(3, 2*time.Second)
	require.Len(t, results, 3)
	assert.EqualValues(t, 1, atomic.LoadInt32(&submitter.maxSeen))
	assert.Equal(t, []string{"0000000001", "0000000002", "0000000003"}, submitter.order)
}

func TestSerializerDiscardsPartialReads(t *testing.T) {
	submitter := &scriptedSubmitter{results: map[string]Result{}}
	record, wait := collectResults()
	s := NewSerializer(submitter, SerializerConfig{RFIDLength: 10, OnResult: record})
	s.Start(context.Background())
	defer s.Stop()

	assert.False(t, s.Offer("123", "slot-1"))
	assert.False(t, s.Offer("", "slot-1"))
	assert.False(t, s.Offer("01234567890", "slot-1"))
	require.True(t, s.Offer("  0123456789  ", "slot-1"))

	results := wait(1, time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, "0123456789", results[0].Scan.RFIDUID)
	assert.Equal(t, []string{"0123456789"}, submitter.order)
}

func TestSerializerContinuesAfterFailure(t *testing.T) {
	submitter := &scriptedSubmitter{results: map[string]Result{
		"0000000001": {Outcome: OutcomeError, Err: errors.New("connection refused")},
	}}
	record, wait := collectResults()
	s := NewSerializer(submitter, SerializerConfig{RFIDLength: 10, OnResult: record})
	s.Start(context.Background())
	defer s.Stop()

	require.True(t, s.Offer("0000000001", "slot-1"))
	require.True(t, s.Offer("0000000002", "slot-1"))

	results := wait(2, 2*time.Second)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Equal(t, OutcomeAccepted, results[1].Outcome)
	// the failed scan is reported once and never retried
	assert.Equal(t, []string{"0000000001", "0000000002"}, submitter.order)
}

func TestSerializerRejectsBeforeStart(t *testing.T) {
	s := NewSerializer(&scriptedSubmitter{results: map[string]Result{}}, SerializerConfig{RFIDLength: 10})
	assert.False(t, s.Offer("0123456789", "slot-1"))
}
