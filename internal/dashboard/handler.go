package dashboard

import (
	"context"
	"log"
	"os"
	"reflect"
	"time"

	"github.com/attendsync/attendsync/internal/reconcile"
)

// Handler forwards driver status changes to the server's clients.
type Handler struct {
	server Broadcaster
	sync   Sync
	logger *log.Logger
}

// NewHandler creates a handler bridging sync to server.
func NewHandler(server Broadcaster, sync Sync, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, sync: sync, logger: logger}
}

// Run broadcasts every status change until ctx is cancelled. Identical
// consecutive snapshots, apart from their timestamp, are sent once.
func (h *Handler) Run(ctx context.Context) error {
	updates, unsubscribe := h.sync.Subscribe()
	defer unsubscribe()

	var last *reconcile.Status
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			key := s
			key.UpdatedAt = time.Time{}
			if last != nil && reflect.DeepEqual(*last, key) {
				continue
			}
			last = &key

			msg, err := NewMessage(MessageTypeStatus, s)
			if err != nil {
				h.logger.Printf("%v", err)
				continue
			}
			h.server.Broadcast(msg)
		}
	}
}
