package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"spi-dashboard/internal/modules/spi/chat"
	"spi-dashboard/internal/modules/spi/session"
	"spi-dashboard/internal/modules/spi/types"
	"spi-dashboard/internal/modules/spi/views"
	"spi-dashboard/internal/utils"
)

const tableChangedEvent = "table-changed"

func mustSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		slog.Error("request without session", "path", r.URL.Path)
		utils.WriteError(w, http.StatusInternalServerError, "missing session")
	}
	return s, ok
}

func (c *spiControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	tbl, err := c.chat.ActiveTable(r.Context(), s)
	if err != nil {
		slog.Error("dashboard: load table failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load table")
		return
	}

	data := views.DashboardData{
		Title:     c.opts.Title,
		MapConfig: c.opts.MapConfig,
		Guidance:  c.opts.Guidance,
		Chat:      views.ChatData{Turns: s.Transcript()},
		Table:     tablePage(tbl, 1),
	}
	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, &buf)
}

// handleChat serves the HTMX form. Refused submissions re-render the
// transcript with a notice and a 4xx status.
func (c *spiControllerImpl) handleChat(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid form")
		return
	}

	status := http.StatusOK
	data := views.ChatData{}
	_, err := c.chat.Submit(r.Context(), s, r.PostForm.Get("question"))
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		status = http.StatusBadRequest
		data.Notice = "Please type a question."
	case errors.Is(err, chat.ErrBusy):
		status = http.StatusConflict
		data.Notice = "We are still processing your previous request."
	case err != nil:
		slog.Error("chat: submit failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to process request")
		return
	default:
		w.Header().Set("HX-Trigger", tableChangedEvent)
	}

	data.Turns = s.Transcript()
	c.writeChatPartial(w, status, &data)
}

func (c *spiControllerImpl) handleChatPartial(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	c.writeChatPartial(w, http.StatusOK, &views.ChatData{Turns: s.Transcript()})
}

func (c *spiControllerImpl) writeChatPartial(w http.ResponseWriter, status int, data *views.ChatData) {
	var buf bytes.Buffer
	if err := views.RenderChatPartial(&buf, data); err != nil {
		slog.Error("chat partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, status, &buf)
}

func (c *spiControllerImpl) handleTablePartial(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	tbl, err := c.chat.ActiveTable(r.Context(), s)
	if err != nil {
		slog.Error("table partial: load table failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load table")
		return
	}

	data := tablePage(tbl, parsePage(r))
	var buf bytes.Buffer
	if err := views.RenderTablePartial(&buf, &data); err != nil {
		slog.Error("table partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, &buf)
}

type tableResponse struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

func (c *spiControllerImpl) activeTable(w http.ResponseWriter, r *http.Request) (types.Table, bool) {
	s, ok := mustSession(w, r)
	if !ok {
		return types.Table{}, false
	}
	tbl, err := c.chat.ActiveTable(r.Context(), s)
	if err != nil {
		slog.Error("load active table failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load table")
		return types.Table{}, false
	}
	return tbl, true
}

func (c *spiControllerImpl) handleTable(w http.ResponseWriter, r *http.Request) {
	tbl, ok := c.activeTable(w, r)
	if !ok {
		return
	}
	rows := tbl.Rows
	if rows == nil {
		rows = [][]any{}
	}
	utils.WriteJSON(w, http.StatusOK, tableResponse{Columns: tbl.Columns, Rows: rows, RowCount: tbl.Len()})
}

func (c *spiControllerImpl) handleTableGeoJSON(w http.ResponseWriter, r *http.Request) {
	tbl, ok := c.activeTable(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, tableToGeoJSON(c.opts.Title, tbl))
}

type transcriptResponse struct {
	State string       `json:"state"`
	Turns []types.Turn `json:"turns"`
}

func (c *spiControllerImpl) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, transcriptResponse{State: s.State().String(), Turns: s.Transcript()})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (c *spiControllerImpl) handleChatAPI(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := c.chat.Submit(r.Context(), s, req.Question)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrBusy):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("chat api: submit failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to process request")
	default:
		utils.WriteJSON(w, http.StatusOK, reply)
	}
}

func (c *spiControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.stations.Stations(r.Context())
	if err != nil {
		slog.Error("stations: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	if stations == nil {
		stations = []types.Station{}
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *spiControllerImpl) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.opts.MapConfig)
}
