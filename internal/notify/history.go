package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"tunlink/internal/core/types"
	"tunlink/internal/storage"
	"tunlink/internal/storage/models"
)

// HistorySink records connection outcomes into the local history table.
// Writes are best-effort; a failed write is logged and never propagates
// into the coordinator.
type HistorySink struct {
	store storage.Storage
}

// NewHistorySink creates a history-recording sink
func NewHistorySink(store storage.Storage) *HistorySink {
	return &HistorySink{store: store}
}

func (h *HistorySink) Connected(session *types.Session) {
	h.record(&models.HistoryEvent{
		Kind:           models.EventConnect,
		SessionID:      session.ID,
		ServerID:       session.ServerID,
		VirtualAddress: session.VirtualAddress,
	})
}

func (h *HistorySink) Disconnected(acknowledged bool) {
	detail := "acknowledged"
	if !acknowledged {
		detail = "local only"
	}
	h.record(&models.HistoryEvent{
		Kind:   models.EventDisconnect,
		Detail: detail,
	})
}

func (h *HistorySink) AddressChanged(oldAddress, newAddress string) {
	h.record(&models.HistoryEvent{
		Kind:           models.EventAddressChange,
		VirtualAddress: newAddress,
		Detail:         fmt.Sprintf("%s -> %s", oldAddress, newAddress),
	})
}

func (h *HistorySink) Failure(op string, err error) {
	h.record(&models.HistoryEvent{
		Kind:   models.EventFailure,
		Detail: fmt.Sprintf("%s: %v", op, err),
	})
}

func (h *HistorySink) record(event *models.HistoryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.store.RecordEvent(ctx, event); err != nil {
		log.Printf("Failed to record history event: %v", err)
	}
}
