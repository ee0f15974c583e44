package kiosk

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scan is one RFID read bound to a time slot.
type Scan struct {
	RFIDUID    string
	TimeSlotID string
	ReadAt     time.Time
}

// Result is the terminal outcome of one submitted scan.
type Result struct {
	Scan    Scan
	Outcome Outcome
	Message string
	Err     error
}

// Outcome classifies what the server said about a scan.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// Submitter delivers one scan to the attendance API. Implementations must
// be safe for use from a single goroutine.
type Submitter interface {
	Submit(ctx context.Context, scan Scan) Result
}

// SerializerConfig configures scan intake behaviour.
type SerializerConfig struct {
	RFIDLength int
	BufferSize int
	OnResult   func(Result)
	Logger     *zap.Logger
}

// Serializer funnels RFID reads through a single in-flight request. A scan
// queued while another is being submitted waits its turn; reads shorter
// than the configured RFID length are discarded at intake as partial
// keyboard-wedge input. Failed submissions are reported, never retried,
// so a stuck server cannot wedge the scan loop.
type Serializer struct {
	submitter  Submitter
	rfidLength int
	onResult   func(Result)
	logger     *zap.Logger

	scans   chan Scan
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	busy    bool
}

// NewSerializer builds a serializer around the given submitter.
func NewSerializer(submitter Submitter, cfg SerializerConfig) *Serializer {
	if cfg.RFIDLength <= 0 {
		cfg.RFIDLength = 10
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Serializer{
		submitter:  submitter,
		rfidLength: cfg.RFIDLength,
		onResult:   cfg.OnResult,
		logger:     cfg.Logger,
		scans:      make(chan Scan, cfg.BufferSize),
	}
}

// Start begins the single submission worker. Safe to call once.
func (s *Serializer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.worker()
	s.started = true
	s.logger.Info("kiosk serializer started", zap.Int("rfid_length", s.rfidLength))
}

// Stop cancels the worker and waits for the in-flight scan to finish.
func (s *Serializer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("kiosk serializer stopped")
}

// Offer enqueues one raw reader value. It reports false when the value was
// discarded at intake (wrong length) or the queue is full; a false return
// never reaches the server.
func (s *Serializer) Offer(raw, timeSlotID string) bool {
	uid := strings.TrimSpace(raw)
	if len(uid) != s.rfidLength {
		s.logger.Debug("discarded partial rfid read", zap.Int("length", len(uid)))
		return false
	}

	s.mu.Lock()
	ctx := s.ctx
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}

	scan := Scan{RFIDUID: uid, TimeSlotID: timeSlotID, ReadAt: time.Now()}
	select {
	case <-ctx.Done():
		return false
	case s.scans <- scan:
		return true
	default:
		s.logger.Warn("scan queue full, dropping read", zap.String("rfid_uid", uid))
		return false
	}
}

// Busy reports whether a submission is currently in flight.
func (s *Serializer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Serializer) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case scan := <-s.scans:
			s.setBusy(true)
			result := s.submitter.Submit(s.ctx, scan)
			s.setBusy(false)
			if result.Err != nil {
				s.logger.Warn("scan submission failed",
					zap.String("rfid_uid", scan.RFIDUID),
					zap.Error(result.Err))
			}
			if s.onResult != nil {
				s.onResult(result)
			}
		}
	}
}

func (s *Serializer) setBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}
