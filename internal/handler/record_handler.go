package handler

import (
	"net/http"
	"strconv"
	"strings"

	"eegility/internal/domain"
	"eegility/internal/logger"
	"eegility/internal/service"

	"go.uber.org/zap"
)

type RecordHandler struct {
	records *service.RecordService
	perms   *service.PermissionService
	shares  *service.ShareService
	log     *zap.Logger
}

func NewRecordHandler(
	records *service.RecordService,
	perms *service.PermissionService,
	shares *service.ShareService,
	log *zap.Logger,
) *RecordHandler {
	return &RecordHandler{
		records: records,
		perms:   perms,
		shares:  shares,
		log:     logger.Named(log, "records-http"),
	}
}

// parseRecordFilter читает фильтры списка: search, tags (через запятую или
// повторяющимся параметром tag), format, limit, cursor.
func parseRecordFilter(r *http.Request) (domain.RecordFilter, error) {
	q := r.URL.Query()
	filter := domain.RecordFilter{
		SearchTerm: q.Get("search"),
		Format:     domain.Format(q.Get("format")),
		Cursor:     q.Get("cursor"),
	}

	for _, raw := range q["tags"] {
		filter.Tags = append(filter.Tags, strings.Split(raw, ",")...)
	}
	filter.Tags = append(filter.Tags, q["tag"]...)

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, domain.NewError(domain.KindValidation, "limit must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	page, err := h.records.ListVisible(r.Context(), identity(r), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *RecordHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input domain.NewEegRecord
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	record, err := h.records.Register(r.Context(), identity(r), input)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	summary, err := h.records.Get(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var update domain.RecordUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	record, err := h.records.UpdateMetadata(r.Context(), identity(r), id, update)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.records.Delete(r.Context(), identity(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download отдает ссылку на файл; с ?redirect=true сразу перенаправляет.
func (h *RecordHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	url, err := h.records.DownloadURL(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type permissionResponse struct {
	AccessType domain.AccessType `json:"access_type"`
	Permission domain.Permission `json:"permission"`
	Action     domain.Action     `json:"action,omitempty"`
	Allowed    *bool             `json:"allowed,omitempty"`
}

// Permission reports the caller's access to the record. With ?action=...
// it also answers whether that particular action is allowed.
func (h *RecordHandler) Permission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	caller := identity(r)
	summary, err := h.perms.EffectiveAccess(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := permissionResponse{
		AccessType: summary.AccessType,
		Permission: summary.Permission,
	}

	if raw := r.URL.Query().Get("action"); raw != "" {
		action := domain.Action(raw)
		allowed := true
		if _, err := h.perms.Authorize(r.Context(), caller, id, action); err != nil {
			if domain.KindOf(err) != domain.KindForbidden {
				writeError(w, r, h.log, err)
				return
			}
			allowed = false
		}
		resp.Action = action
		resp.Allowed = &allowed
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RecordHandler) RequestAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	analysis, err := h.records.RequestAnalysis(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, analysis)
}

func (h *RecordHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	analysis, err := h.records.GetAnalysis(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *RecordHandler) Shares(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	requests, err := h.shares.ListRecordShares(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}
