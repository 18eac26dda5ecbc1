package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ---- request / response models ----

type createRunRequest struct {
	Requirements string `json:"requirements" validate:"required,max=200000"`
	AutoApprove  bool   `json:"auto_approve"`
}

type verdictRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Feedback string `json:"feedback" validate:"max=50000"`
}

// RunSummary is one row of the run list.
type RunSummary struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	CurrentStage pipeline.StageID `json:"current_stage"`
	Steps        int              `json:"steps"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// RunDetail is a full run record plus the review it is waiting on, if any.
type RunDetail struct {
	*pipeline.RunRecord
	Live          bool           `json:"live"`
	PendingReview *human.Request `json:"pending_review,omitempty"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// ---- handlers ----

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Requirements = strings.TrimSpace(req.Requirements)
	if req.Requirements == "" {
		writeError(w, http.StatusBadRequest, "requirements must not be blank")
		return
	}

	rec, err := s.startRun(req.Requirements, req.AutoApprove)
	if err != nil {
		s.log.Error("start run", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, summarize(*rec))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RunSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarize(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Get(id)
	if errors.Is(err, pipeline.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	detail := RunDetail{RunRecord: rec}
	if lr, ok := s.live(id); ok {
		detail.Live = true
		if req, pending := lr.channel.Pending(); pending {
			detail.PendingReview = &req
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req verdictRequest
	if !s.decode(w, r, &req) {
		return
	}
	lr, ok := s.live(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s is not active", id))
		return
	}

	err := lr.channel.Submit(human.Response{Approved: *req.Approved, Feedback: req.Feedback})
	switch {
	case errors.Is(err, human.ErrNoPendingReview):
		writeError(w, http.StatusConflict, "run is not waiting for a verdict")
		return
	case errors.Is(err, human.ErrAborted):
		writeError(w, http.StatusGone, "run was aborted")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = s.store.Update(id, func(rec *pipeline.RunRecord) {
		if rec.Status == pipeline.StatusAwaitingReview {
			rec.Status = pipeline.StatusInProgress
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "approved": *req.Approved})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lr, ok := s.live(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s is not active", id))
		return
	}
	lr.channel.Close()
	lr.cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "aborting"})
}

// ---- helpers ----

// decode parses a JSON body into dst and validates it, writing a 400 on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag()))
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: details})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func summarize(rec pipeline.RunRecord) RunSummary {
	return RunSummary{
		ID:           rec.ID,
		Status:       rec.Status,
		CurrentStage: rec.CurrentStage,
		Steps:        rec.Steps,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
