package handler

import (
	"net/http"

	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/service"

	"go.uber.org/zap"
)

type ShareHandler struct {
	shareService *service.ShareService
	log          *zap.Logger
}

func NewShareHandler(shareService *service.ShareService, log *zap.Logger) *ShareHandler {
	return &ShareHandler{
		shareService: shareService,
		log:          logger.Named(log, "shares-http"),
	}
}

func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req service.CreateShareInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	share, err := h.shareService.CreateShare(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.log.Info("share created",
		zap.String("share_id", share.ID.String()),
		zap.String("record_id", share.EegRecordID.String()),
	)
	writeJSON(w, http.StatusCreated, share)
}

func (h *ShareHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	requests, err := h.shareService.ListIncoming(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *ShareHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	requests, err := h.shareService.ListOutgoing(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *ShareHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	share, err := h.shareService.GetShare(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

// Respond возвращает обработчик для accept/reject.
func (h *ShareHandler) Respond(action domain.ShareAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}

		share, err := h.shareService.RespondToShare(r.Context(), identity(r), id, action)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, share)
	}
}

func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	share, err := h.shareService.RevokeShare(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

func (h *ShareHandler) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	n, err := h.shareService.CleanupExpired(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}
