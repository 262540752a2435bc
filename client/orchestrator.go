package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/walletauth/internal/eth"
)

// Client-only failure modes. Neither is surfaced to the user: lock
// contention means another attempt is already in flight, and drift
// means the user intentionally changed wallets or networks mid-flow.
var (
	ErrLockContention  = errors.New("another authentication attempt is in flight")
	ErrConnectionDrift = errors.New("wallet connection changed during authentication")
	ErrCancelled       = errors.New("authentication attempt was cancelled")
)

// Message is the backend's answer to a message request.
type Message struct {
	Message   string
	Nonce     string
	Timestamp int64
}

// Credentials is the established session after a successful handshake.
type Credentials struct {
	AccessToken   string
	RefreshToken  string
	WalletAddress string
}

// VerifyParams carries the signed result back to the backend.
type VerifyParams struct {
	WalletAddress string
	Signature     string
	SignatureType eth.SignatureType
	ChainID       int64
	DeviceID      string
	Platform      string
}

// Backend is the server side of the handshake.
type Backend interface {
	GenerateMessage(ctx context.Context, walletAddress string) (*Message, error)
	VerifyAndLogin(ctx context.Context, params VerifyParams) (*Credentials, error)
	Logout(ctx context.Context, refreshToken string) error
}

// SigningRequest gives the wallet everything it may need to sign: the
// raw message for personal-sign and safe wallets, and the schema fields
// for typed-data wallets.
type SigningRequest struct {
	WalletAddress string
	Message       string
	Nonce         string
	Timestamp     int64
	ChainID       int64
}

// WalletSigner abstracts the connected wallet's signing capability.
type WalletSigner interface {
	// SignatureType reports which verification mode the wallet's
	// signatures need.
	SignatureType() eth.SignatureType

	// Sign produces a 0x-prefixed hex signature for the request.
	Sign(ctx context.Context, req SigningRequest) (string, error)
}

// ConnectionProvider reports the current wallet connection facts.
type ConnectionProvider interface {
	ConnectionState() (isConnected bool, address string, chainID int64)
}

// Stage identifies a step of the handshake for observers.
type Stage string

const (
	StageLockAcquired     Stage = "lock-acquired"
	StageSnapshotCaptured Stage = "snapshot-captured"
	StageMessageGenerated Stage = "message-generated"
	StageMessageSigned    Stage = "message-signed"
	StageVerified         Stage = "verified"
	StageCompleted        Stage = "completed"
	StageAborted          Stage = "aborted"
	StageFailed           Stage = "failed"
)

// Event is a discrete state transition emitted by the orchestrator,
// decoupling progress UI from protocol logic.
type Event struct {
	Stage         Stage
	WalletAddress string
	Err           error
}

// DefaultSettleDelay absorbs wallet-app-switch latency on mobile
// before the first post-generation checkpoint.
const DefaultSettleDelay = 300 * time.Millisecond

// Config tunes an Orchestrator.
type Config struct {
	// SettleDelay is the pause before the first post-generation
	// checkpoint. Zero means DefaultSettleDelay; negative disables the
	// delay entirely.
	SettleDelay time.Duration

	// DeviceID and Platform are forwarded for best-effort device
	// approval. Both optional.
	DeviceID string
	Platform string

	// Notify receives state-transition events. Optional.
	Notify func(Event)
}

// Orchestrator drives the client side of the handshake: acquire the
// single-flight lock, snapshot the connection, fetch a message, have
// the wallet sign it, verify with the backend, and re-check connection
// consistency after every suspension point.
type Orchestrator struct {
	backend   Backend
	wallet    WalletSigner
	conn      ConnectionProvider
	snapshots *Snapshotter
	lock      *Lock
	logger    *zap.Logger
	cfg       Config
}

// NewOrchestrator creates an orchestrator owning its own snapshot
// counter and lock, so concurrent sessions never share hidden state.
func NewOrchestrator(backend Backend, wallet WalletSigner, conn ConnectionProvider, logger *zap.Logger, cfg Config) *Orchestrator {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Orchestrator{
		backend:   backend,
		wallet:    wallet,
		conn:      conn,
		snapshots: NewSnapshotter(),
		lock:      NewLock(),
		logger:    logger,
		cfg:       cfg,
	}
}

// Lock exposes the orchestrator's authentication lock, so an external
// disconnect handler can cancel an in-flight attempt via CancelCurrent.
func (o *Orchestrator) Lock() *Lock {
	return o.lock
}

// Authenticate runs the full handshake for the wallet address. A
// second call while one is in flight returns ErrLockContention and
// does nothing. Drift and cancellation abort with their sentinel
// errors; callers treat both as silent no-ops.
func (o *Orchestrator) Authenticate(ctx context.Context, walletAddress string) (*Credentials, error) {
	attempt, ok := o.lock.Acquire(walletAddress)
	if !ok {
		o.logger.Debug("authentication already in flight, skipping",
			zap.String("address", walletAddress),
		)
		return nil, ErrLockContention
	}
	defer attempt.Release()

	o.emit(StageLockAcquired, walletAddress, nil)

	initial := o.capture()
	if err := ValidateForAuthStart(initial, walletAddress); err != nil {
		o.emit(StageFailed, walletAddress, err)
		return nil, err
	}
	o.emit(StageSnapshotCaptured, walletAddress, nil)

	msg, err := o.backend.GenerateMessage(ctx, walletAddress)
	if err != nil {
		o.emit(StageFailed, walletAddress, err)
		return nil, err
	}
	o.emit(StageMessageGenerated, walletAddress, nil)

	if err := o.settle(ctx); err != nil {
		o.emit(StageAborted, walletAddress, err)
		return nil, err
	}
	if err := o.checkpoint(attempt, initial); err != nil {
		o.emit(StageAborted, walletAddress, err)
		return nil, err
	}

	signature, err := o.wallet.Sign(ctx, SigningRequest{
		WalletAddress: walletAddress,
		Message:       msg.Message,
		Nonce:         msg.Nonce,
		Timestamp:     msg.Timestamp,
		ChainID:       initial.ChainID,
	})
	if err != nil {
		o.emit(StageFailed, walletAddress, err)
		return nil, err
	}
	o.emit(StageMessageSigned, walletAddress, nil)

	if err := o.checkpoint(attempt, initial); err != nil {
		o.emit(StageAborted, walletAddress, err)
		return nil, err
	}

	creds, err := o.backend.VerifyAndLogin(ctx, VerifyParams{
		WalletAddress: walletAddress,
		Signature:     signature,
		SignatureType: o.wallet.SignatureType(),
		ChainID:       initial.ChainID,
		DeviceID:      o.cfg.DeviceID,
		Platform:      o.cfg.Platform,
	})
	if err != nil {
		o.emit(StageFailed, walletAddress, err)
		return nil, err
	}
	o.emit(StageVerified, walletAddress, nil)

	// Final consistency check. The session exists server-side now, so a
	// late drift means it was established for a connection that no
	// longer matches reality: tear it down rather than leave it live.
	if err := o.checkpoint(attempt, initial); err != nil {
		o.logger.Warn("connection drifted after login, signing back out",
			zap.String("address", walletAddress),
			zap.Error(err),
		)
		if logoutErr := o.backend.Logout(ctx, creds.RefreshToken); logoutErr != nil {
			o.logger.Warn("failed to invalidate drifted session",
				zap.String("address", walletAddress),
				zap.Error(logoutErr),
			)
		}
		o.emit(StageAborted, walletAddress, err)
		return nil, err
	}

	o.emit(StageCompleted, walletAddress, nil)
	return creds, nil
}

// checkpoint aborts when the attempt was cancelled or the connection no
// longer matches the reference snapshot.
func (o *Orchestrator) checkpoint(attempt *Attempt, reference Snapshot) error {
	if attempt.IsCancelled() {
		return ErrCancelled
	}
	candidate := o.capture()
	if !IsConsistent(reference, candidate) {
		o.logger.Debug("connection state drifted",
			zap.String("reference_address", reference.Address),
			zap.String("candidate_address", candidate.Address),
			zap.Int64("reference_chain", reference.ChainID),
			zap.Int64("candidate_chain", candidate.ChainID),
		)
		return ErrConnectionDrift
	}
	return nil
}

func (o *Orchestrator) capture() Snapshot {
	isConnected, address, chainID := o.conn.ConnectionState()
	return o.snapshots.Capture(isConnected, address, chainID)
}

// settle waits out wallet-app-switch latency, honoring cancellation.
func (o *Orchestrator) settle(ctx context.Context) error {
	if o.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(o.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) emit(stage Stage, walletAddress string, err error) {
	if o.cfg.Notify == nil {
		return
	}
	o.cfg.Notify(Event{Stage: stage, WalletAddress: walletAddress, Err: err})
}
