package foia

import (
	"crypto/subtle"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// JobKeyHeader carries the shared secret on the scheduled job endpoints
const JobKeyHeader = "X-Foiatracker-Job-Key"

// CheckJobKey only lets through callers holding the configured job key. Without a key configured the
// job endpoints are closed.
func (s *Server) CheckJobKey(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := r.Header.Get(JobKeyHeader)

		if s.cfg.JobKey == "" || subtle.ConstantTimeCompare([]byte(k), []byte(s.cfg.JobKey)) != 1 {
			returnJSONError(w, r, http.StatusUnauthorized, "Unauthorized: job key invalid")
			return
		}

		h.ServeHTTP(w, r)
	})
}

type jobOut struct {
	Count int `json:"count"`
}

// SendRemindersJSON runs a reminder sweep
func (s *Server) SendRemindersJSON(w http.ResponseWriter, r *http.Request) {
	n, err := s.SendReminders(r.Context())
	if err != nil {
		log.WithError(err).Error("SendRemindersJSON: failed to send reminders")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to send reminders")
		return
	}

	returnJSONResult(w, r, http.StatusOK, jobOut{Count: n})
}

// SyncRecipientsJSON re-syncs every recipient with the directory
func (s *Server) SyncRecipientsJSON(w http.ResponseWriter, r *http.Request) {
	n, err := s.SyncRecipients(r.Context())
	if err != nil {
		log.WithError(err).Error("SyncRecipientsJSON: failed to sync recipients")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to sync recipients")
		return
	}

	returnJSONResult(w, r, http.StatusOK, jobOut{Count: n})
}
