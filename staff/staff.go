// Package staff looks up newsroom staffers in the staff directory API
package staff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/newsapps/foiatracker/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Staffer is a staff directory entry
type Staffer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Client queries the staff directory
type Client struct {
	baseURL    string
	http       *http.Client
	newBackOff func() backoff.BackOff
}

// New returns a staff directory client
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, 2)
		},
	}
}

// Lookup returns the staffer with the given email. ok is false when the directory doesn't know the
// address or can't be reached.
func (c *Client) Lookup(ctx context.Context, email string) (s Staffer, ok bool) {
	u := c.baseURL + "/staff/" + url.PathEscape(email)

	var found bool
	op := func() error {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return errors.Errorf("staff: status %v", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil
		}

		var raw map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return backoff.Permanent(errors.Wrap(err, "staff: failed to decode response"))
		}

		first, fOK := raw["firstName"].(string)
		last, lOK := raw["lastName"].(string)
		if !fOK || !lOK {
			return nil
		}

		s = Staffer{FirstName: first, LastName: last}
		found = true
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		log.WithField("email", email).WithError(err).Warn("Staff: failed to look up staffer")
		metrics.DirectoryLookups.WithLabelValues("staff", "error").Inc()
		return Staffer{}, false
	}

	if !found {
		log.WithField("email", email).Info("Staff: staffer not found")
		metrics.DirectoryLookups.WithLabelValues("staff", "not_found").Inc()
		return Staffer{}, false
	}

	metrics.DirectoryLookups.WithLabelValues("staff", "found").Inc()
	return s, true
}
