package notify

import (
	"context"
	"log"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// LogNotifier writes alerts to the process log. Used when no broker is
// configured, and in the stress tool.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, alert domain.StockAlert) error {
	log.Printf("stock alert [%s] %s", alert.Severity, alert.Message)
	return nil
}
