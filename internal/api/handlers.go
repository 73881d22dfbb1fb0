package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// twilioWebhookHandler runs an inbound SMS as an sms turn. The reply is sent
// back to the sender by the orchestrator and echoed in the response body.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	slog.Info("Server.twilioWebhookHandler: inbound SMS", "from", from, "bodyLength", len(body))

	reply := s.orch.Process(r.Context(), models.InputTypeSMS, []byte(body), from)
	writeJSONResponse(w, http.StatusOK, webhookResponse{Message: reply.Text})
}

// processHandler runs a text or audio turn from query or form parameters and
// stores the synthesized reply as an audio file.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.processHandler: failed to parse parameters", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request parameters"))
		return
	}

	inputType, err := models.ParseInputType(r.FormValue("input_type"))
	switch {
	case errors.Is(err, models.ErrEmptyInputType):
		slog.Warn("Server.processHandler: missing input_type")
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrInvalidInputType):
		slog.Warn("Server.processHandler: unrecognized input_type, treating as text", "input_type", r.FormValue("input_type"))
		inputType = models.InputTypeText
	}
	userInput := r.FormValue("user_input")

	reply := s.orch.Process(r.Context(), inputType, []byte(userInput), "")

	path, err := s.audio.Save(reply.Audio)
	if err != nil {
		slog.Error("Server.processHandler: failed to save response audio", "turnID", reply.TurnID, "error", err)
		path = ""
	}
	writeJSONResponse(w, http.StatusOK, processResponse{Text: reply.Text, AudioFile: path})
}

func (s *Server) turnsHandler(w http.ResponseWriter, r *http.Request) {
	if s.turnLog == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Turn log not configured"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	turns, err := s.turnLog.GetTurns(limit)
	if err != nil {
		slog.Error("Server.turnsHandler: failed to read turns", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read turns"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turns))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if s.turnLog == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Turn log not configured"))
		return
	}
	receipts, err := s.turnLog.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to read receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read receipts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().Unix()})
}
