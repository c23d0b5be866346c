package api

import (
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"slidecast/internal/controller"
	"slidecast/internal/ingest"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		owner = strings.TrimSpace(r.URL.Query().Get("owner"))
	}
	opts, err := s.ingestOptions(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	name, data, err := s.readUpload(r, opts.Limits.MaxBytes)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), controller.IngestRequest{
		OwnerID:  owner,
		FileName: name,
		Data:     data,
		Options:  &opts,
	})
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	if !result.Success {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, result)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// readUpload returns the deck bytes from a multipart "file" field or the raw
// body. At most limit+1 bytes are read so oversized uploads still reach the
// document validator and are reported as TooLarge.
func (s *Server) readUpload(r *http.Request, limit int64) (string, []byte, error) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := readLimited(r.Body, limit)
		return name, data, err
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, uploadError(err.Error())
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, uploadError(`multipart body has no "file" field`)
		}
		if err != nil {
			return "", nil, uploadError(err.Error())
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		if fileName := strings.TrimSpace(part.FileName()); fileName != "" {
			name = fileName
		}
		data, err := readLimited(part, limit)
		_ = part.Close()
		return name, data, err
	}
}

func readLimited(src io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, uploadError(err.Error())
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, uploadError(err.Error())
	}
	return data, nil
}

func uploadError(message string) error {
	return &controller.ValidationError{Fields: []controller.FieldError{{Field: "file", Message: message}}}
}

// ingestOptions overlays query parameters on the configured defaults.
func (s *Server) ingestOptions(r *http.Request) (ingest.Options, error) {
	opts := s.ingestor.Options()
	if s.maxUpload > 0 {
		opts.Limits.MaxBytes = s.maxUpload
	}
	query := r.URL.Query()
	var fields []controller.FieldError
	parseFloat := func(key string, dst *float64) {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields = append(fields, controller.FieldError{Field: key, Message: "must be a number"})
			return
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			fields = append(fields, controller.FieldError{Field: key, Message: "must be a finite number"})
			return
		}
		*dst = value
	}
	parseBool := func(key string, dst *bool) {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			return
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			fields = append(fields, controller.FieldError{Field: key, Message: "must be true or false"})
			return
		}
		*dst = value
	}

	parseFloat("duration", &opts.DefaultDurationSeconds)
	parseFloat("minDuration", &opts.MinDurationSeconds)
	parseFloat("transitionDuration", &opts.Transition.DurationSeconds)
	if transition := strings.ToLower(strings.TrimSpace(query.Get("transition"))); transition != "" {
		opts.Transition.Type = transition
	}
	parseBool("useNotesTiming", &opts.UseNotesTiming)
	parseBool("ignoreDeckTransitions", &opts.IgnoreDeckTransitions)
	parseBool("skipHidden", &opts.SkipHidden)
	parseBool("thumbnails", &opts.Thumbnails)

	if len(fields) > 0 {
		return opts, &controller.ValidationError{Fields: fields}
	}
	if err := opts.Validate(); err != nil {
		return opts, &controller.ValidationError{Fields: []controller.FieldError{{Field: "options", Message: err.Error()}}}
	}
	return opts, nil
}
