package tram

import (
	"context"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// ReceivedMessageStore remembers which messages a subscriber has handled.
type ReceivedMessageStore = adapters.ReceivedMessageStore

// duplicateDetectingHandler drops messages its subscriber already handled.
type duplicateDetectingHandler struct {
	next         MessageHandler
	store        ReceivedMessageStore
	subscriberID string
	logger       Logger
}

// NewDuplicateDetectingHandler wraps next so a redelivered message (same ID,
// same subscriber) is acknowledged without running next again. When next
// fails the record is dropped, so a redelivery is handled again.
func NewDuplicateDetectingHandler(next MessageHandler, store ReceivedMessageStore, subscriberID string, logger Logger) MessageHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &duplicateDetectingHandler{
		next:         next,
		store:        store,
		subscriberID: subscriberID,
		logger:       logger,
	}
}

func (h *duplicateDetectingHandler) HandleMessage(ctx context.Context, msg *Message) error {
	id, err := msg.RequiredHeader(HeaderID)
	if err != nil {
		return err
	}

	fresh, err := h.store.MarkReceived(ctx, h.subscriberID, id)
	if err != nil {
		return err
	}
	if !fresh {
		h.logger.Debug("Dropping duplicate message", "subscriber", h.subscriberID, "messageID", id)
		return nil
	}

	if err := h.next.HandleMessage(ctx, msg); err != nil {
		if forgetErr := h.store.Forget(ctx, h.subscriberID, id); forgetErr != nil {
			h.logger.Error("Failed to forget message after handler error",
				"subscriber", h.subscriberID, "messageID", id, "error", forgetErr)
		}
		return err
	}
	return nil
}

// WithDuplicateDetection makes the dispatcher drop commands it already
// answered, keyed by subscriberID and the command message ID.
func WithDuplicateDetection(store ReceivedMessageStore, subscriberID string) DispatcherOption {
	return func(d *CommandDispatcher) {
		d.received = store
		d.subscriberID = subscriberID
	}
}
