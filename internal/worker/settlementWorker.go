package worker

import (
	"errors"
	"time"

	"github.com/cradoe/lumenbank/internal/ledger"
)

const sweepBatchSize = 50

// SettlementSweep settles deferred transactions whose auto-complete
// deadline has passed. It can race an admin deciding the same transaction;
// the terminal-state guard inside the poster means exactly one of them
// wins, so a settled row here is a skip, not an error.
func (wk *Worker) SettlementSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-wk.Ctx.Done():
			return
		case <-ticker.C:
			wk.sweepDueTransactions()
		}
	}
}

func (wk *Worker) sweepDueTransactions() {
	due, err := wk.DB.Transaction().ListDueForAutoComplete(time.Now(), sweepBatchSize)
	if err != nil {
		wk.Logger.Error("listing due transactions", "error", err)
		return
	}

	for _, trans := range due {
		err := wk.Poster.Approve(trans.ID)
		switch {
		case err == nil:
			wk.Logger.Info("auto-completed transaction",
				"transaction_id", trans.ID, "reference", trans.ReferenceNumber)
		case errors.Is(err, ledger.ErrTransactionSettled):
			// an admin got there first
		case errors.Is(err, ledger.ErrInsufficientFunds):
			wk.Logger.Warn("auto-complete failed transaction for insufficient funds",
				"transaction_id", trans.ID)
		default:
			wk.Logger.Error("auto-completing transaction",
				"transaction_id", trans.ID, "error", err)
		}
	}
}
