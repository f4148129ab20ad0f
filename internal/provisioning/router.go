package provisioning

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/doorguard-core/internal/store"
)

// maxFormBytes bounds the POST body. Three short tokens fit comfortably.
const maxFormBytes = 1024

// Form field names.
const (
	fieldNetworkName   = "ssid"
	fieldNetworkSecret = "psw"
	fieldTarget        = "id"
)

// Handler returns the HTTP handler serving the setup form.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/", s.handleForm)
	r.Post("/", s.handleSubmit)

	return r
}

func (s *Service) handleForm(w http.ResponseWriter, _ *http.Request) {
	writePage(w, http.StatusOK, formPage, nil)
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Not saved", "The form submission is too large.")
			return
		}
		writeMessage(w, http.StatusBadRequest, "Not saved", "The form submission could not be read.")
		return
	}

	rec, err := parseSubmission(body)
	if err != nil {
		s.logger.Warn("rejected provisioning submission", "error", err)
		writeMessage(w, http.StatusBadRequest, "Not saved", "All three fields are required. Values may not contain spaces and must fit the record limit.")
		return
	}

	saved, err := s.submit(rec)
	if err != nil {
		s.logger.Error("provisioning write failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Not saved", "The configuration could not be stored. The device has halted.")
		return
	}
	if !saved {
		writeMessage(w, http.StatusConflict, "Already configured", "A configuration has already been saved. The device is restarting.")
		return
	}

	writeMessage(w, http.StatusOK, "Saved", "Configuration saved. The device will restart and join your network.")
	s.markWritten()
}

// parseSubmission extracts the record from a URL-encoded form body. Keys may
// appear in any order; a missing or empty key is an error.
func parseSubmission(body []byte) (store.Record, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return store.Record{}, err
	}

	rec := store.Record{
		NetworkName:        values.Get(fieldNetworkName),
		NetworkSecret:      values.Get(fieldNetworkSecret),
		NotificationTarget: values.Get(fieldTarget),
	}
	if err := rec.Validate(); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}
