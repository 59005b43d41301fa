package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-fulfillment/internal/notify"
)

// PaymentWebhook handles POST /api/webhooks/payment.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "read body"))
		return
	}
	n, err := notify.Decode(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.receiver.Receive(r.Context(), n); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Webhook processed successfully")
}
