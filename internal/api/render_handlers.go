package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"slidecast/internal/controller"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/timeline"
)

const maxSubmitBody = 64 << 10

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req controller.SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, &controller.ValidationError{
			Fields: []controller.FieldError{{Field: "body", Message: "invalid JSON: " + err.Error()}},
		})
		return
	}
	resp, err := s.controller.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/api/render/"+resp.JobID)
	s.writeJSON(w, r, http.StatusAccepted, resp)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.controller.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.controller.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.controller.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/api/render/"+resp.JobID)
	s.writeJSON(w, r, http.StatusAccepted, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	statuses, err := parseStatuses(query["status"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	views, err := s.controller.List(r.Context(), query.Get("owner"), statuses...)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	if views == nil {
		views = []controller.JobView{}
	}
	s.writeJSON(w, r, http.StatusOK, JobListResponse{Jobs: views})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	record, err := s.controller.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "yaml") {
		w.Header().Set("Content-Type", "application/yaml")
		if err := timeline.EncodeYAML(w, record.Timeline); err != nil {
			s.logger.Warn("encode timeline yaml", logging.Error(err))
		}
		return
	}
	s.writeJSON(w, r, http.StatusOK, TimelineResponse{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		SourceURL: record.SourceURL,
		CreatedAt: record.CreatedAt,
		Timeline:  record.Timeline,
	})
}

// parseStatuses accepts repeated and comma separated status values.
func parseStatuses(values []string) ([]jobs.Status, error) {
	var out []jobs.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				return nil, &controller.ValidationError{Fields: []controller.FieldError{{
					Field:   "status",
					Message: fmt.Sprintf("unknown status %q", part),
				}}}
			}
			out = append(out, status)
		}
	}
	return out, nil
}
