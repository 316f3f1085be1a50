package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"safecircle/internal/escalation/models"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/httputil"
	"safecircle/pkg/requestcontext"
)

const streamHeartbeat = 15 * time.Second

// handleStream serves committed snapshots of one escalation as server-sent
// events until the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}
	actor := requestcontext.UserID(ctx)

	updates := make(chan *models.EscalationEvent, 16)
	done := make(chan struct{})
	unsubscribe, err := h.service.SubscribeEscalation(ctx, escalationID, actor, func(snapshot *models.EscalationEvent) {
		select {
		case updates <- snapshot:
		case <-done:
		}
	})
	if err != nil {
		h.fail(ctx, w, "open stream", err)
		return
	}
	defer func() {
		close(done)
		unsubscribe()
	}()

	// Subscribe before reading so no commit falls between the two.
	current, err := h.service.GetEscalation(ctx, escalationID, actor)
	if err != nil {
		h.fail(ctx, w, "open stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lastVersion := current.Version
	if err := writeEvent(w, current); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-updates:
			if snapshot.Version <= lastVersion {
				continue
			}
			lastVersion = snapshot.Version
			if err := writeEvent(w, snapshot); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e *models.EscalationEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: escalation\ndata: %s\n\n", e.Version, data)
	return err
}
