// Package notify posts request announcements and reminders to Slack
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newsapps/foiatracker/cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

const (
	username  = "FOIAtracker"
	iconEmoji = ":foiatracker:"
	color     = "#568C2F"

	usersKey = "slack_users"
	teamKey  = "slack_team"
	cacheTTL = time.Hour

	excerptLength = 50
)

// ErrUnknownUser is returned when no Slack user has the given email
var ErrUnknownUser = errors.New("notify: no slack user with that email")

type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetTeamInfoContext(ctx context.Context) (*slack.TeamInfo, error)
}

// Member is the part of a Slack user we keep in the roster cache
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

// NewRequest describes a newly filed records request
type NewRequest struct {
	Sender      string
	SenderEmail string
	Subject     string
	URL         string
	Recipients  string
	Due         time.Time
	Text        string
}

// Slack sends notifications through the Slack web API
type Slack struct {
	api     api
	channel string
	cache   cache.Cache
}

// New returns a Slack notifier posting announcements to channel. The user roster and team domain are
// kept in c for an hour.
func New(token, channel string, c cache.Cache, opts ...slack.Option) *Slack {
	return &Slack{
		api:     slack.New(token, opts...),
		channel: channel,
		cache:   c,
	}
}

// PostNewRequest announces a request in the channel. When the sender has a Slack account the
// attachment is signed with their name, avatar and profile link.
func (s *Slack) PostNewRequest(ctx context.Context, n NewRequest) error {
	msg := fmt.Sprintf("%s just submitted a records request to %s", n.Sender, n.Recipients)

	att := slack.Attachment{
		Title:     n.Subject,
		TitleLink: n.URL,
		Color:     color,
		Fields: []slack.AttachmentField{
			{Title: "Recipient(s)", Value: n.Recipients, Short: true},
			{Title: "Response due", Value: n.Due.Format("Jan 2"), Short: true},
			{Title: "Request", Value: excerpt(n.Text), Short: false},
		},
	}

	s.addAuthor(ctx, &att, n)

	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(msg, false),
		slack.MsgOptionAsUser(false),
		slack.MsgOptionUsername(username),
		slack.MsgOptionIconEmoji(iconEmoji),
		slack.MsgOptionAttachments(att),
	)
	if err != nil {
		return errors.Wrap(err, "Slack: failed to post new request")
	}

	return nil
}

// SendReminder sends text as a direct message to the Slack user with the given email
func (s *Slack) SendReminder(ctx context.Context, email, text string) error {
	m, ok, err := s.Member(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrUnknownUser, email)
	}

	_, _, err = s.api.PostMessageContext(ctx, m.ID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionUsername(username),
		slack.MsgOptionIconEmoji(iconEmoji),
	)
	if err != nil {
		return errors.Wrapf(err, "Slack: failed to send reminder to %v", m.ID)
	}

	return nil
}

// Member finds the Slack user with the given email in the cached roster
func (s *Slack) Member(ctx context.Context, email string) (Member, bool, error) {
	roster, err := s.roster(ctx)
	if err != nil {
		return Member{}, false, err
	}

	for _, m := range roster {
		if m.Email != "" && strings.EqualFold(m.Email, email) {
			return m, true, nil
		}
	}

	return Member{}, false, nil
}

func (s *Slack) addAuthor(ctx context.Context, att *slack.Attachment, n NewRequest) {
	m, ok, err := s.Member(ctx, n.SenderEmail)
	if err != nil {
		log.WithField("email", n.SenderEmail).WithError(err).Warn("Slack: failed to look up sender")
		return
	}
	if !ok {
		return
	}

	domain, err := s.teamDomain(ctx)
	if err != nil {
		log.WithError(err).Warn("Slack: failed to get team domain")
		return
	}

	att.AuthorName = n.Sender
	att.AuthorIcon = m.Image
	att.AuthorLink = fmt.Sprintf("https://%s.slack.com/team/%s", domain, m.Name)
}

func (s *Slack) roster(ctx context.Context) ([]Member, error) {
	var roster []Member

	ok, err := s.cache.Get(ctx, usersKey, &roster)
	if err != nil {
		log.WithError(err).Warn("Slack: failed to read cached roster")
	}
	if ok {
		return roster, nil
	}

	users, err := s.api.GetUsersContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Slack: failed to list users")
	}

	roster = make([]Member, 0, len(users))
	for _, u := range users {
		roster = append(roster, Member{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Profile.Email,
			Image: u.Profile.Image24,
		})
	}

	if err := s.cache.Set(ctx, usersKey, roster, cacheTTL); err != nil {
		log.WithError(err).Warn("Slack: failed to cache roster")
	}

	return roster, nil
}

func (s *Slack) teamDomain(ctx context.Context) (string, error) {
	var domain string

	ok, err := s.cache.Get(ctx, teamKey, &domain)
	if err != nil {
		log.WithError(err).Warn("Slack: failed to read cached team domain")
	}
	if ok {
		return domain, nil
	}

	team, err := s.api.GetTeamInfoContext(ctx)
	if err != nil {
		return "", errors.Wrap(err, "Slack: failed to get team info")
	}

	if err := s.cache.Set(ctx, teamKey, team.Domain, cacheTTL); err != nil {
		log.WithError(err).Warn("Slack: failed to cache team domain")
	}

	return team.Domain, nil
}

func excerpt(text string) string {
	r := []rune(text)
	if len(r) > excerptLength {
		return string(r[:excerptLength])
	}
	return text
}
