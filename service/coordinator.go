package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/internal/retry"
	"github.com/0xsend/sendauth/ports"
	"github.com/0xsend/sendauth/userop"
)

// sendState is the paymaster coordinator's explicit state. Transitions are
// linear; every terminal path returns the machine to idle so a caller may
// retry the whole flow from scratch. Partial state is not resumable.
type sendState int

const (
	stateIdle sendState = iota
	stateRequestingSponsorship
	stateSending
	stateWaitingForReceipt
	stateSettled
	stateFailed
)

func (s sendState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRequestingSponsorship:
		return "requesting_sponsorship"
	case stateSending:
		return "sending"
	case stateWaitingForReceipt:
		return "waiting_for_receipt"
	case stateSettled:
		return "settled"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("sendState(%d)", int(s))
	}
}

// SignFunc computes the account owner's signature over the final operation
// hash, after paymaster data has been merged in.
type SignFunc func(opHash common.Hash) ([]byte, error)

// SendService coordinates gas sponsorship, submission, and receipt waiting
// for a user operation.
type SendService struct {
	bundler   ports.BundlerClient
	paymaster ports.PaymasterClient
	builder   *userop.Builder
	eventPub  ports.EventPublisher
	logger    *zap.Logger
	policy    retry.Policy

	mu    sync.Mutex
	state sendState
}

// NewSendService creates a new send coordinator
func NewSendService(
	bundler ports.BundlerClient,
	paymaster ports.PaymasterClient,
	builder *userop.Builder,
	eventPub ports.EventPublisher,
	policy retry.Policy,
	logger *zap.Logger,
) *SendService {
	return &SendService{
		bundler:   bundler,
		paymaster: paymaster,
		builder:   builder,
		eventPub:  eventPub,
		policy:    policy,
		logger:    logger.Named("send"),
	}
}

func (s *SendService) transition(to sendState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// State returns the coordinator's current state name, for observability.
func (s *SendService) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Send runs the full sponsorship flow: obtain paymaster data, merge it,
// have the caller sign the completed operation, submit it, and await the
// receipt with bounded retry.
func (s *SendService) Send(ctx context.Context, op *userop.UserOperation, sign SignFunc) (*userop.Receipt, error) {
	defer s.transition(stateIdle)

	s.transition(stateRequestingSponsorship)
	sponsorship, err := s.paymaster.SponsorUserOperation(ctx, op)
	if err != nil {
		s.transition(stateFailed)
		return nil, fmt.Errorf("sponsorship request failed: %w", err)
	}
	op.ApplyPaymaster(*sponsorship)

	s.transition(stateSending)
	opHash, err := s.builder.Hash(op)
	if err != nil {
		s.transition(stateFailed)
		return nil, err
	}
	signature, err := sign(opHash)
	if err != nil {
		s.transition(stateFailed)
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	op.Signature = signature

	return s.submit(ctx, op)
}

// Submit sends an already-signed operation and awaits its receipt. Used by
// the flows where the client co-signed a draft out of band.
func (s *SendService) Submit(ctx context.Context, op *userop.UserOperation) (*userop.Receipt, error) {
	if len(op.Signature) == 0 {
		return nil, fmt.Errorf("operation is unsigned: %w", core.ErrBadRequest)
	}

	defer s.transition(stateIdle)
	s.transition(stateSending)
	return s.submit(ctx, op)
}

func (s *SendService) submit(ctx context.Context, op *userop.UserOperation) (*userop.Receipt, error) {
	submittedHash, err := s.bundler.SendUserOperation(ctx, op)
	if err != nil {
		s.transition(stateFailed)
		return nil, fmt.Errorf("submission failed: %w", err)
	}

	s.transition(stateWaitingForReceipt)
	receipt, err := s.awaitReceipt(ctx, submittedHash)
	if err != nil {
		s.transition(stateFailed)
		return nil, err
	}

	s.transition(stateSettled)
	if err := s.eventPub.PublishTransferSettled(ctx, op.Sender, receipt.TransactionHash); err != nil {
		s.logger.Warn("failed to publish settlement event", zap.Error(err))
	}
	return receipt, nil
}

// awaitReceipt polls the bundler under the bounded retry policy. Only
// transient failures (receipt not ready, network errors) are retried; a
// receipt with Success=false is terminal.
func (s *SendService) awaitReceipt(ctx context.Context, opHash common.Hash) (*userop.Receipt, error) {
	var receipt *userop.Receipt

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		polled, err := s.bundler.GetUserOperationReceipt(ctx, opHash)
		if err != nil {
			return err
		}
		if !polled.Success {
			return retry.Stop(fmt.Errorf("%w: %s", core.ErrOperationReverted, polled.Reason))
		}
		receipt = polled
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrOperationReverted) {
			return nil, err
		}
		return nil, fmt.Errorf("%v: %w", err, core.ErrReceiptNotReady)
	}
	return receipt, nil
}
