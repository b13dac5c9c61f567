package api

import (
	"context"

	"go.uber.org/zap"
)

// VerificationRequest identifies a confirmed transaction to attest.
type VerificationRequest struct {
	Address      string
	SessionToken string
	TxHash       string
	TaskID       int
}

// VerificationClient asks the service whether transactions satisfy tasks.
type VerificationClient interface {
	Verify(ctx context.Context, req VerificationRequest) bool
}

// Verifier is the VerificationClient backed by Client. Failures are logged
// as warnings and reported as false.
type Verifier struct {
	Client *Client
	Log    *zap.Logger
}

func NewVerifier(c *Client, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{Client: c, Log: log}
}

func (v *Verifier) Verify(ctx context.Context, req VerificationRequest) bool {
	ok, err := v.Client.VerifyTask(ctx, req.Address, req.SessionToken, req.TaskID, req.TxHash)
	if err != nil {
		v.Log.Warn("task verification failed",
			zap.String("address", req.Address),
			zap.Int("task_id", req.TaskID),
			zap.String("tx_hash", req.TxHash),
			zap.Error(err))
		return false
	}
	return ok
}

// VerifyFunc adapts a function to VerificationClient.
type VerifyFunc func(ctx context.Context, req VerificationRequest) bool

func (f VerifyFunc) Verify(ctx context.Context, req VerificationRequest) bool { return f(ctx, req) }
