package foia

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Response is the root response for every api call
type Response struct {
	Success bool        `json:"success"`
	Errors  interface{} `json:"errors"`
	Result  interface{} `json:"result"`
	Meta    Meta        `json:"meta"`
}

// Errors is our error struct for if something goes wrong
type Errors struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Meta contains our version number and by
type Meta struct {
	Version string `json:"version"`
	By      string `json:"by"`
}

// GetMeta returns meta info for json api responses
func GetMeta() Meta {
	return Meta{
		Version: version,
		By:      "FOIAtracker",
	}
}

// returnJSONError returns json with custom error message
func returnJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	returnJSON(w, r, status, Response{
		Success: false,
		Result:  nil,
		Meta:    GetMeta(),
		Errors: Errors{
			Code: status,
			Msg:  msg,
		},
	})
}

// returnJSONResult wraps res in a successful response
func returnJSONResult(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	returnJSON(w, r, status, Response{
		Success: true,
		Result:  res,
		Meta:    GetMeta(),
	})
}

func returnJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	err := encoder.Encode(resp)
	if err != nil {
		log.WithField("path", r.URL.Path).WithError(err).Error("returnJSON: failed to write response")
		return
	}
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	return d.Decode(v)
}
