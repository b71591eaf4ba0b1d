package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
)

// State is a step of delivery processing.
type State string

const (
	StateReceived  State = "received"
	StateVerifying State = "verifying"
	StateRouting   State = "routing"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

const (
	msgSignatureFailed = "signature verification failed"
	msgMissingHeader   = "missing signature header"
	finalizeTimeout    = 10 * time.Second
)

// Dispatcher synchronizes the entity named by one change.
type Dispatcher interface {
	Dispatch(ctx context.Context, change entitysync.Change) entitysync.Result
}

// Recorder receives outcome counts. Implementations must not block.
type Recorder interface {
	RecordDelivery(ctx context.Context, status string)
	RecordEntity(ctx context.Context, entityType, result string)
}

type Options struct {
	Source           string
	VerifierToken    string
	StrictSignatures bool
}

// Request is one inbound POST.
type Request struct {
	Body       []byte
	Signature  string
	DeliveryID string
	RequestID  string
	ReceivedAt time.Time
}

// Response is what the HTTP layer sends back to the provider.
type Response struct {
	HTTPStatus int    `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DeliveryID string `json:"delivery_id"`
	RequestID  string `json:"request_id"`
	RowID      uint   `json:"-"`
}

// Supervisor drives a delivery from receipt to a terminal status.
type Supervisor struct {
	events     *EventLog
	dispatcher Dispatcher
	submitter  Submitter
	recorder   Recorder
	opts       Options
}

func NewSupervisor(events *EventLog, dispatcher Dispatcher, submitter Submitter, opts Options) *Supervisor {
	if submitter == nil {
		submitter = InlineSubmitter{}
	}
	return &Supervisor{
		events:     events,
		dispatcher: dispatcher,
		submitter:  submitter,
		opts:       opts,
	}
}

// WithRecorder attaches outcome counters.
func (s *Supervisor) WithRecorder(r Recorder) *Supervisor {
	s.recorder = r
	return s
}

func (s *Supervisor) Events() *EventLog {
	return s.events
}

// DeriveDeliveryID returns a stable id for bodies that arrive without one.
func DeriveDeliveryID(body []byte) string {
	sum := sha256.Sum256(body)
	return "hash:" + hex.EncodeToString(sum[:])
}

// Handle logs, verifies, parses and submits one delivery. It never panics
// and answers 200 for every outcome except a rejected signature in strict
// mode.
func (s *Supervisor) Handle(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.DeliveryID == "" {
		req.DeliveryID = DeriveDeliveryID(req.Body)
	}
	req.DeliveryID = models.BoundIdentifier(req.DeliveryID, models.MaxDeliveryIDLength)
	req.RequestID = models.BoundIdentifier(req.RequestID, models.MaxRequestIDLength)
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = start
	}

	resp = Response{
		HTTPStatus: http.StatusOK,
		DeliveryID: req.DeliveryID,
		RequestID:  req.RequestID,
	}

	state := StateReceived
	var rowID uint
	in := DeliveryInput{
		DeliveryID: req.DeliveryID,
		RequestID:  req.RequestID,
		Source:     s.opts.Source,
		RawPayload: req.Body,
		ReceivedAt: req.ReceivedAt,
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[Webhook] panic in state %s for delivery %s: %v", state, req.DeliveryID, rec)
			s.finish(ctx, rowID, in, Outcome{
				Status:   models.DeliveryStatusFailed,
				Errors:   []string{fmt.Sprintf("internal error: %v", rec)},
				Duration: time.Since(start),
			})
			resp.HTTPStatus = http.StatusOK
			resp.Success = false
			resp.Message = "Webhook received but processing failed"
		}
	}()

	// The signature is a pure function of the body, so its result is known
	// before the row is written and stored with it.
	in.SignatureValid = VerifySignature(req.Body, req.Signature, s.opts.VerifierToken)

	id, err := s.events.RecordReceived(ctx, in)
	if err != nil {
		log.Errorf("[Webhook] failed to log delivery %s: %v", req.DeliveryID, err)
	} else {
		rowID = id
		resp.RowID = id
	}

	state = StateVerifying
	if !in.SignatureValid {
		reason := msgSignatureFailed
		if req.Signature == "" {
			reason = msgMissingHeader
		}
		if s.opts.StrictSignatures {
			log.Warnf("[Webhook] rejecting delivery %s: %s", req.DeliveryID, reason)
			s.finish(ctx, rowID, in, Outcome{
				Status:   models.DeliveryStatusFailed,
				Errors:   []string{msgSignatureFailed},
				Duration: time.Since(start),
			})
			resp.HTTPStatus = http.StatusUnauthorized
			resp.Message = "Invalid signature"
			return resp
		}
		log.Warnf("[Webhook] delivery %s: %s, continuing in permissive mode", req.DeliveryID, reason)
		in.VerificationWarning = reason
		if rowID != 0 {
			if err := s.events.AnnotateVerification(ctx, rowID, reason); err != nil {
				log.Errorf("[Webhook] failed to annotate delivery %s: %v", req.DeliveryID, err)
			}
		}
	}

	state = StateRouting
	notifications, err := ParseNotifications(req.Body)
	if err != nil {
		var perr *ParseError
		msg := err.Error()
		if errors.As(err, &perr) {
			msg = perr.Message
		}
		log.Warnf("[Webhook] delivery %s: %s", req.DeliveryID, msg)
		s.finish(ctx, rowID, in, Outcome{
			Status:   models.DeliveryStatusFailed,
			Errors:   []string{msg},
			Duration: time.Since(start),
		})
		resp.Message = "Webhook received but payload could not be parsed"
		return resp
	}

	state = StateSyncing
	s.submitter.Submit(func(taskCtx context.Context) {
		s.sync(taskCtx, rowID, in, notifications, start)
	})

	resp.Success = true
	resp.Message = fmt.Sprintf("Webhook received, %d notification(s) accepted", len(notifications))
	return resp
}

// sync dispatches notifications in order and writes the terminal outcome.
func (s *Supervisor) sync(ctx context.Context, rowID uint, in DeliveryInput, notifications []Notification, start time.Time) {
	out := Outcome{
		Summary:   Summarize(notifications),
		Processed: []string{},
		Skipped:   []string{},
		Errors:    []string{},
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[Webhook] panic while syncing delivery %s: %v", in.DeliveryID, rec)
			out.Errors = append(out.Errors, fmt.Sprintf("internal error: %v", rec))
			out.Status = models.DeliveryStatusFailed
			out.Duration = time.Since(start)
			s.finish(ctx, rowID, in, out)
		}
	}()

	for _, n := range notifications {
		res := s.dispatcher.Dispatch(ctx, n.Change())
		switch {
		case res.OK:
			out.Processed = append(out.Processed, res.Token())
			s.recordEntity(ctx, res.EntityType, "processed")
		case res.Skipped:
			out.Skipped = append(out.Skipped, res.Describe())
			s.recordEntity(ctx, res.EntityType, "skipped")
		default:
			log.Warnf("[Webhook] delivery %s: %s", in.DeliveryID, res.Describe())
			out.Errors = append(out.Errors, res.Describe())
			s.recordEntity(ctx, res.EntityType, "failed")
		}
	}

	out.Status = models.DeliveryStatusCompleted
	if len(out.Errors) > 0 {
		out.Status = models.DeliveryStatusFailed
	}
	out.Duration = time.Since(start)
	s.finish(ctx, rowID, in, out)
}

// finish writes the terminal outcome to the existing row, or to a fresh row
// when the received row was never written. Errors are only logged.
func (s *Supervisor) finish(ctx context.Context, rowID uint, in DeliveryInput, out Outcome) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var err error
	if rowID != 0 {
		err = s.events.UpdateOutcome(fctx, rowID, out)
	} else {
		_, err = s.events.RecordTerminal(fctx, in, out)
	}
	switch {
	case errors.Is(err, repository.ErrDeliveryFinalized):
		log.Warnf("[Webhook] delivery %s (row %d) was already finalized", in.DeliveryID, rowID)
		return
	case err != nil:
		log.Errorf("[Webhook] failed to finalize delivery %s: %v", in.DeliveryID, err)
	default:
		log.Infof("[Webhook] delivery %s %s in %dms (processed=%d skipped=%d errors=%d)",
			in.DeliveryID, out.Status, out.Duration.Milliseconds(), len(out.Processed), len(out.Skipped), len(out.Errors))
	}
	if s.recorder != nil {
		s.recorder.RecordDelivery(fctx, out.Status)
	}
}

func (s *Supervisor) recordEntity(ctx context.Context, entityType, result string) {
	if s.recorder != nil {
		s.recorder.RecordEntity(ctx, entityType, result)
	}
}

// ErrNotReprocessable is returned for rows whose stored payload was truncated
// and cannot be recovered.
var ErrNotReprocessable = errors.New("delivery payload is truncated and not archived")

// Reprocess finishes a delivery row that is stuck in received, or replays a
// terminal row as a new delivery linked through ReplayOf. It returns the id
// of the row that was processed. Processing is always inline.
func (s *Supervisor) Reprocess(ctx context.Context, rowID uint) (uint, error) {
	row, err := s.events.Get(ctx, rowID)
	if err != nil {
		return 0, fmt.Errorf("load delivery %d: %w", rowID, err)
	}
	body, err := s.events.Payload(ctx, row)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	in := DeliveryInput{
		DeliveryID:          row.DeliveryID,
		RequestID:           row.RequestID,
		Source:              row.Source,
		RawPayload:          body,
		SignatureValid:      row.SignatureValid,
		VerificationWarning: row.VerificationWarning,
		ReceivedAt:          row.ReceivedAt,
	}

	targetID := row.ID
	if row.IsTerminal() {
		replayOf := row.ID
		in.RequestID = uuid.NewString()
		in.ReplayOf = &replayOf
		in.ReceivedAt = start
		targetID, err = s.events.RecordReceived(ctx, in)
		if err != nil {
			return 0, err
		}
		log.Infof("[Webhook] replaying delivery row %d as row %d", row.ID, targetID)
	}

	if s.opts.StrictSignatures && !in.SignatureValid {
		s.finish(ctx, targetID, in, Outcome{
			Status:   models.DeliveryStatusFailed,
			Errors:   []string{msgSignatureFailed},
			Duration: time.Since(start),
		})
		return targetID, nil
	}

	notifications, err := ParseNotifications(body)
	if err != nil {
		var perr *ParseError
		msg := err.Error()
		if errors.As(err, &perr) {
			msg = perr.Message
		}
		s.finish(ctx, targetID, in, Outcome{
			Status:   models.DeliveryStatusFailed,
			Errors:   []string{msg},
			Duration: time.Since(start),
		})
		return targetID, nil
	}

	s.sync(ctx, targetID, in, notifications, start)
	return targetID, nil
}
