package foia

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/newsapps/foiatracker/token"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TokenHeader carries the signed link token on classification calls
const TokenHeader = "X-Foiatracker-Token"

// JSONContentType sets content type of request to json
func JSONContentType(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h.ServeHTTP(w, r)
	})
}

// CheckClassificationToken makes sure the caller holds a token issued for the email in the url. The
// token comes from the prompt email links, either as a header or a query parameter.
func (s *Server) CheckClassificationToken(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get(TokenHeader)
		if t == "" {
			t = r.URL.Query().Get("token")
		}

		err := s.tg.Verify(t, mux.Vars(r)["uuid"])

		switch {
		case err == nil:
			h.ServeHTTP(w, r)
		case errors.Is(err, token.ErrTokenExpired):
			returnJSONError(w, r, http.StatusForbidden, "Forbidden: your token has expired")
		case errors.Is(err, token.ErrInvalidToken):
			returnJSONError(w, r, http.StatusUnauthorized, "Unauthorized: given token invalid")
		default:
			log.WithError(err).Error("CheckClassificationToken: failed to verify token")
			returnJSONError(w, r, http.StatusInternalServerError, "Something went wrong")
		}
	})
}

//SetVersionHeader adds a header with the current version
func SetVersionHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Foiatracker-Version", version)

		h.ServeHTTP(w, r)
	})
}

//RestoreRealIP uses the real ip of the request from the CF-Connecting-IP header
func RestoreRealIP(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("CF-Connecting-IP")
		if ip != "" {
			r.RemoteAddr = ip
		}
		h.ServeHTTP(w, r)
	})
}
