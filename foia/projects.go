package foia

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// recentUpdates is how many events a project page shows
const recentUpdates = 10

// maxSlugAttempts bounds the retries when another project grabs a slug between the check and the insert
const maxSlugAttempts = 5

// UniqueSlug returns a slug for name that no project uses yet, appending -2, -3 and so on as needed
func (s *Server) UniqueSlug(name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "project"
	}

	candidate := base
	for i := 2; ; i++ {
		exists, err := s.db.SlugExists(candidate)
		if err != nil {
			return "", errors.Wrap(err, "UniqueSlug: failed to check slug")
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// CreateProject saves a project with a unique slug and its collaborators, creating senders for
// collaborator addresses that haven't emailed in yet
func (s *Server) CreateProject(ctx context.Context, name, description string, collaborators []string) (Project, error) {
	var p Project
	var err error

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		var sl string
		sl, err = s.UniqueSlug(name)
		if err != nil {
			return Project{}, err
		}

		p, err = s.db.SaveNewProject(Project{Name: name, Description: description, Slug: sl, CreatedAt: s.now()})
		if !errors.Is(err, ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return Project{}, errors.Wrap(err, "CreateProject: failed to save project")
	}

	ids := make([]int64, 0, len(collaborators))
	for _, addr := range collaborators {
		sender, err := s.GetOrCreateSender(ctx, addr)
		if err != nil {
			return Project{}, err
		}
		ids = append(ids, sender.ID)
	}

	if err := s.db.SetProjectCollaborators(p.ID, ids); err != nil {
		return Project{}, errors.Wrap(err, "CreateProject: failed to save collaborators")
	}

	return p, nil
}

type projectIn struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Collaborators []string `json:"collaborators"`
}

// NewProjectJSON creates a project
func (s *Server) NewProjectJSON(w http.ResponseWriter, r *http.Request) {
	var in projectIn
	if err := decodeJSON(r, &in); err != nil {
		returnJSONError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(in.Name) == "" {
		returnJSONError(w, r, http.StatusBadRequest, "name can't be empty")
		return
	}

	for _, c := range in.Collaborators {
		if !strings.Contains(c, "@") {
			returnJSONError(w, r, http.StatusBadRequest, fmt.Sprintf("%q isn't an email address", c))
			return
		}
	}

	p, err := s.CreateProject(r.Context(), strings.TrimSpace(in.Name), in.Description, in.Collaborators)
	if err != nil {
		log.WithField("name", in.Name).WithError(err).Error("NewProjectJSON: failed to create project")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to create project")
		return
	}

	returnJSONResult(w, r, http.StatusCreated, p)
}

// ProjectDetail is a project with its people and requests
type ProjectDetail struct {
	Project
	Collaborators []Sender         `json:"collaborators"`
	RecentUpdates []EventDetail    `json:"recent_updates"`
	Pending       []RequestSummary `json:"pending"`
	Finished      []RequestSummary `json:"finished"`
}

// ProjectDetail returns the project with the given slug
func (s *Server) ProjectDetail(sl string) (ProjectDetail, error) {
	p, err := s.db.GetProjectBySlug(sl)
	if err != nil {
		return ProjectDetail{}, err
	}

	d := ProjectDetail{Project: p, RecentUpdates: []EventDetail{}, Pending: []RequestSummary{}, Finished: []RequestSummary{}}

	d.Collaborators, err = s.db.GetProjectCollaborators(p.ID)
	if err != nil {
		return ProjectDetail{}, errors.Wrap(err, "ProjectDetail: failed to get collaborators")
	}

	rs, err := s.db.ListRequests(RequestFilter{ProjectID: &p.ID})
	if err != nil {
		return ProjectDetail{}, errors.Wrap(err, "ProjectDetail: failed to get requests")
	}

	for _, r := range rs {
		summary, events, err := s.requestSummary(r)
		if err != nil {
			return ProjectDetail{}, errors.Wrapf(err, "ProjectDetail: request %v", r.ID)
		}

		if summary.Complete {
			d.Finished = append(d.Finished, summary)
		} else {
			d.Pending = append(d.Pending, summary)
		}

		for _, e := range events {
			d.RecentUpdates = append(d.RecentUpdates, EventDetail{
				Event:               e,
				StatusLabel:         e.Status.Label(),
				ElapsedBusinessDays: ElapsedBusinessDays(s.cal, r, e),
			})
		}
	}

	sort.SliceStable(d.RecentUpdates, func(i, j int) bool {
		a, b := d.RecentUpdates[i], d.RecentUpdates[j]
		if !a.UpdateDate.Equal(b.UpdateDate) {
			return a.UpdateDate.After(b.UpdateDate)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if len(d.RecentUpdates) > recentUpdates {
		d.RecentUpdates = d.RecentUpdates[:recentUpdates]
	}

	return d, nil
}

// GetProjectJSON returns a project with its collaborators, recent updates and requests
func (s *Server) GetProjectJSON(w http.ResponseWriter, r *http.Request) {
	sl := mux.Vars(r)["slug"]

	d, err := s.ProjectDetail(sl)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Project not found")
		return
	} else if err != nil {
		log.WithField("project", sl).WithError(err).Error("GetProjectJSON: failed to get project")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get project")
		return
	}

	returnJSONResult(w, r, http.StatusOK, d)
}
