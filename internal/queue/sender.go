package queue

import (
	"context"

	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

// LedgerSender delivers queued items through the ledger client.
type LedgerSender struct {
	client *ledger.Client
}

// NewLedgerSender wraps a ledger client as a queue sender.
func NewLedgerSender(client *ledger.Client) *LedgerSender {
	return &LedgerSender{client: client}
}

// Send implements Sender. A 2xx response with success=false is a logical
// rejection and surfaces as a permanent error so the item is failed rather
// than silently dropped.
func (s *LedgerSender) Send(ctx context.Context, item Item) error {
	result, err := s.client.ProcessAction(ctx, item.Request, item.IdempotencyKey)
	if err != nil {
		return err
	}
	if !result.Success {
		return &ledger.RejectedError{Message: result.Message}
	}
	return nil
}

// Retryable implements Sender.
func (s *LedgerSender) Retryable(err error) bool {
	return ledger.IsRetryable(err)
}
