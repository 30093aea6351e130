// Package rolodex resolves external contacts against the newsroom's Rolodex directory service.
package rolodex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/newsapps/foiatracker/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	peopleEndpoint   = "people"
	orgsEndpoint     = "orgs"
	contactsEndpoint = "contacts"
)

// errNotOK is returned when the directory answers with anything other than a 200
var errNotOK = errors.New("rolodex: non success response")

// Contact is an entry from the contacts endpoint. Org and Person are links to the detail endpoints.
type Contact struct {
	ID      int64   `json:"id"`
	Contact string  `json:"contact"`
	Org     *string `json:"org"`
	Person  *string `json:"person"`
}

// Person is a person detail
type Person struct {
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	OrgRelations []string `json:"org_relations"`
}

// Organization is an organization detail
type Organization struct {
	OrgName string `json:"orgName"`
}

// Match is the result of syncing an email address with the directory. Every field is always set
// by Sync so a Match replaces whatever was stored before.
type Match struct {
	ContactID      *int64
	PersonID       *int64
	OrganizationID *int64
	Name           string
	Organization   string
}

// Client talks to the Rolodex API
type Client struct {
	baseURL    string
	http       *http.Client
	newBackOff func() backoff.BackOff
}

// New returns a client for the directory at baseURL. Every call is bounded by timeout and retried a
// couple of times on network errors and 5xx responses.
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

// URL returns the detail url for the given endpoint and id, or "" when id is nil
func (c *Client) URL(endpoint string, id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%s/api/%s/%d/", c.baseURL, endpoint, *id)
}

// PersonURL returns the detail url for a person id
func (c *Client) PersonURL(id *int64) string {
	return c.URL(peopleEndpoint, id)
}

// OrganizationURL returns the detail url for an organization id
func (c *Client) OrganizationURL(id *int64) string {
	return c.URL(orgsEndpoint, id)
}

// ContactURL returns the detail url for a contact id
func (c *Client) ContactURL(id *int64) string {
	return c.URL(contactsEndpoint, id)
}

// IDFromURL pulls the numeric id out of a detail link such as https://rolodex/api/people/12/
func IDFromURL(link string) (int64, error) {
	parts := strings.Split(link, "/")
	if len(parts) < 2 {
		return 0, errors.Errorf("rolodex: no id in url %q", link)
	}

	id, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "rolodex: no id in url %q", link)
	}

	return id, nil
}

// ResolveContact returns the first contact whose email matches. Any failure is reported as no match.
func (c *Client) ResolveContact(ctx context.Context, email string) (Contact, bool) {
	u := fmt.Sprintf("%s/api/%s/?contact=%s", c.baseURL, contactsEndpoint, url.QueryEscape(email))

	var contacts []Contact
	if err := c.getJSON(ctx, u, &contacts); err != nil {
		log.WithField("email", email).WithError(err).Warn("Rolodex: failed to query contacts")
		metrics.DirectoryLookups.WithLabelValues("rolodex", "error").Inc()
		return Contact{}, false
	}

	for _, contact := range contacts {
		if strings.EqualFold(contact.Contact, email) {
			metrics.DirectoryLookups.WithLabelValues("rolodex", "found").Inc()
			return contact, true
		}
	}

	metrics.DirectoryLookups.WithLabelValues("rolodex", "not_found").Inc()
	return Contact{}, false
}

// ResolveEntity fetches a person or organization detail into v. It returns false on any failure.
func (c *Client) ResolveEntity(ctx context.Context, link string, v interface{}) bool {
	if err := c.getJSON(ctx, link, v); err != nil {
		log.WithField("url", link).WithError(err).Warn("Rolodex: failed to get entity")
		return false
	}
	return true
}

// Sync resolves email against the directory and returns the fields to store on the recipient.
// Directory errors never escape, they degrade to a partial or empty match.
func (c *Client) Sync(ctx context.Context, email string) Match {
	var m Match

	contact, ok := c.ResolveContact(ctx, email)
	if !ok {
		return Match{}
	}
	m.ContactID = int64Ptr(contact.ID)

	// contacts tied straight to an organization take precedence over people
	if contact.Org != nil {
		m.OrganizationID = idFromLink(*contact.Org)

		var org Organization
		if m.OrganizationID != nil && c.ResolveEntity(ctx, c.OrganizationURL(m.OrganizationID), &org) {
			m.Name = ""
			m.PersonID = nil
			m.Organization = org.OrgName
			return m
		}
	}

	if contact.Person == nil {
		return Match{ContactID: m.ContactID}
	}

	m.PersonID = idFromLink(*contact.Person)

	var person Person
	if m.PersonID == nil || !c.ResolveEntity(ctx, c.PersonURL(m.PersonID), &person) {
		return Match{ContactID: m.ContactID}
	}
	m.Name = fmt.Sprintf("%s %s", person.FirstName, person.LastName)

	if len(person.OrgRelations) == 0 {
		m.Organization = ""
		m.OrganizationID = nil
		return m
	}

	m.Organization = ""
	m.OrganizationID = idFromLink(person.OrgRelations[0])

	var org Organization
	if m.OrganizationID != nil && c.ResolveEntity(ctx, c.OrganizationURL(m.OrganizationID), &org) {
		m.Organization = org.OrgName
	}

	return m
}

func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	op := func() error {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req = req.WithContext(ctx)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Wrapf(errNotOK, "status %v", resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(errors.Wrapf(errNotOK, "status %v", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(errors.Wrap(err, "rolodex: failed to decode response"))
		}

		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

func idFromLink(link string) *int64 {
	id, err := IDFromURL(link)
	if err != nil {
		log.WithField("url", link).WithError(err).Warn("Rolodex: failed to parse id from link")
		return nil
	}
	return &id
}

func int64Ptr(i int64) *int64 {
	return &i
}
