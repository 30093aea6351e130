package foia

import (
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/gobuffalo/packr"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/newsapps/foiatracker/calendar"
	"github.com/newsapps/foiatracker/dedup"
	"github.com/newsapps/foiatracker/email"
	"github.com/newsapps/foiatracker/queue"
	"github.com/newsapps/foiatracker/storage"
	"github.com/newsapps/foiatracker/token"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Packr box for message templates
var templates = packr.NewBox("../templates")

var reminderTemplate *template.Template

// version number - this is overridden at build time to inject the commit hash
var version = "dev"

// classification links stay valid for a month
const tokenMaxAge = 30 * 24 * time.Hour

// Server bundles several data types together for dependency injection into http handlers
type Server struct {
	db        Database
	Router    *mux.Router
	tg        *token.Generator
	mail      Mailer
	notifier  Notifier
	directory Directory
	staff     StaffDirectory
	queue     queue.Enqueuer
	store     storage.Store
	seen      dedup.Filter
	cal       *calendar.Calendar
	loc       *time.Location
	now       func() time.Time

	cfg Config
}

//Config contains key configuration parameters to be passed to New()
type Config struct {
	Key   string
	URL   string
	Email Mailer
	// AllowedDomains are the newsroom's own domains. Only they may send to the mailhook and addresses
	// on them are never recorded as recipients.
	AllowedDomains []string
	// UpdatesAddress is where staff forward agency replies. It's mentioned in reminders.
	UpdatesAddress string
	Notifier       Notifier
	Directory      Directory
	Staff          StaffDirectory
	Queue          queue.Enqueuer
	Store          storage.Store
	Dedup          dedup.Filter
	Calendar       *calendar.Calendar
	Location       *time.Location
	RestoreRealIP  bool
	// JobKey guards the endpoints a scheduler calls. Empty closes them.
	JobKey string
}

// New returns a Server with the given settings
func New(cfg Config, db Database) (*Server, error) {
	s := Server{
		db:        db,
		tg:        token.NewGenerator(cfg.Key, tokenMaxAge),
		mail:      cfg.Email,
		notifier:  cfg.Notifier,
		directory: cfg.Directory,
		staff:     cfg.Staff,
		queue:     cfg.Queue,
		store:     cfg.Store,
		seen:      cfg.Dedup,
		cal:       cfg.Calendar,
		loc:       cfg.Location,
		now:       Now,
		cfg:       cfg,
	}

	if s.cal == nil {
		s.cal = calendar.Texas(nil)
	}

	if s.loc == nil {
		s.loc = time.UTC
	}

	if s.seen == nil {
		s.seen = dedup.NewMemory(dedup.DefaultTTL)
	}

	reminderTemplate = mustParseTemplate(templates, "reminder.txt")

	err := s.db.Start()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start database")
	}

	s.Router = mux.NewRouter()
	s.Router.StrictSlash(true) // means router will match both "/path" and "/path/"

	s.Router.Handle("/mailhook/", alice.New(SetVersionHeader).ThenFunc(s.Mailhook)).Methods(http.MethodPost)

	// JSON API
	api := alice.New(JSONContentType, SetVersionHeader)
	classify := api.Append(s.CheckClassificationToken)

	// GET too, the prompt email links here
	s.Router.Handle("/api/v1/emails/{uuid}/request/", classify.ThenFunc(s.CreateRequestFromEmailJSON)).Methods(http.MethodGet, http.MethodPost)
	s.Router.Handle("/api/v1/emails/{uuid}/matches/", classify.ThenFunc(s.GetMatchesJSON)).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/events/", api.ThenFunc(s.NewEventJSON)).Methods(http.MethodPost)
	s.Router.Handle("/api/v1/events/{id:[0-9]+}/", api.ThenFunc(s.DeleteEventJSON)).Methods(http.MethodDelete)

	s.Router.Handle("/api/v1/requests/", api.ThenFunc(s.ListRequestsJSON)).Methods(http.MethodGet)
	s.Router.Handle("/api/v1/requests/{id:[0-9]+}/", api.ThenFunc(s.GetRequestJSON)).Methods(http.MethodGet)
	s.Router.Handle("/api/v1/requests/{id:[0-9]+}/", api.ThenFunc(s.UpdateRequestJSON)).Methods(http.MethodPut)
	s.Router.Handle("/api/v1/requests/{id:[0-9]+}/", api.ThenFunc(s.DeleteRequestJSON)).Methods(http.MethodDelete)
	s.Router.Handle("/api/v1/requests/{id:[0-9]+}/reminder/", api.ThenFunc(s.UpdateReminderJSON)).Methods(http.MethodPut)

	s.Router.Handle("/api/v1/projects/", api.ThenFunc(s.NewProjectJSON)).Methods(http.MethodPost)
	s.Router.Handle("/api/v1/projects/{slug}/", api.ThenFunc(s.GetProjectJSON)).Methods(http.MethodGet)

	jobs := api.Append(s.CheckJobKey)
	s.Router.Handle("/api/v1/jobs/send-reminders/", jobs.ThenFunc(s.SendRemindersJSON)).Methods(http.MethodPost)
	s.Router.Handle("/api/v1/jobs/sync-recipients/", jobs.ThenFunc(s.SyncRecipientsJSON)).Methods(http.MethodPost)

	if cfg.RestoreRealIP {
		s.Router.Use(RestoreRealIP)
	}

	s.Router.HandleFunc("/ping", s.Ping)

	return &s, nil
}

// Ping returns PONG when called
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	_, err := w.Write([]byte("PONG"))
	if err != nil {
		log.WithError(err).Error("Ping: failed to write out response")
	}
}

// RequestURL is where a request can be viewed
func (s *Server) RequestURL(id int64) string {
	return fmt.Sprintf("%s/api/v1/requests/%d/", strings.TrimSuffix(s.cfg.URL, "/"), id)
}

// classificationURLs returns the signed links for the prompt email
func (s *Server) classificationURLs(uuid string) (newURL, existingURL string) {
	base := fmt.Sprintf("%s/api/v1/emails/%s", strings.TrimSuffix(s.cfg.URL, "/"), uuid)
	tk := s.tg.NewToken(uuid)

	return fmt.Sprintf("%s/request/?token=%s", base, tk), fmt.Sprintf("%s/matches/?token=%s", base, tk)
}

// isAllowedDomain reports whether addr belongs to the newsroom
func (s *Server) isAllowedDomain(addr string) bool {
	domain := email.Domain(addr)
	if domain == "" {
		return false
	}

	for _, d := range s.cfg.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}

	return false
}

func mustParseTemplate(box packr.Box, name string) *template.Template {
	s, err := box.FindString(name)
	if err != nil {
		log.WithError(err).Fatalf("MustParseTemplate: failed to find template %v", name)
	}

	return template.Must(template.New(name).Parse(s))
}
