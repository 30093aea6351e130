package foia_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newsapps/foiatracker/data/inmemory"
	"github.com/newsapps/foiatracker/dedup"
	"github.com/newsapps/foiatracker/email/mailgunmail"
	"github.com/newsapps/foiatracker/foia"
	"github.com/newsapps/foiatracker/notify"
	"github.com/newsapps/foiatracker/queue"
	"github.com/newsapps/foiatracker/rolodex"
	"github.com/newsapps/foiatracker/staff"
	"github.com/newsapps/foiatracker/storage"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMail struct {
	reject  bool
	m       sync.Mutex
	prompts []mailgunmail.Prompt
}

func (f *fakeMail) VerifyWebhookRequest(r *http.Request) (bool, error) {
	return !f.reject, nil
}

func (f *fakeMail) SendPrompt(p mailgunmail.Prompt) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.prompts = append(f.prompts, p)
	return nil
}

func (f *fakeMail) last(t *testing.T) mailgunmail.Prompt {
	f.m.Lock()
	defer f.m.Unlock()
	require.NotEmpty(t, f.prompts, "no prompt was sent")
	return f.prompts[len(f.prompts)-1]
}

type fakeNotifier struct {
	m         sync.Mutex
	posts     []notify.NewRequest
	reminders []string
	unknown   map[string]bool
}

func (f *fakeNotifier) PostNewRequest(ctx context.Context, n notify.NewRequest) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.posts = append(f.posts, n)
	return nil
}

func (f *fakeNotifier) SendReminder(ctx context.Context, email, text string) error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.unknown[email] {
		return notify.ErrUnknownUser
	}
	f.reminders = append(f.reminders, email+": "+text)
	return nil
}

type fakeDirectory struct {
	matches map[string]rolodex.Match
}

func (f fakeDirectory) Sync(ctx context.Context, email string) rolodex.Match {
	return f.matches[email]
}

func (f fakeDirectory) ContactURL(id *int64) string      { return link("contacts", id) }
func (f fakeDirectory) PersonURL(id *int64) string       { return link("people", id) }
func (f fakeDirectory) OrganizationURL(id *int64) string { return link("orgs", id) }

func link(endpoint string, id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("https://rolodex.example.com/api/%s/%d/", endpoint, *id)
}

type fakeStaff map[string]staff.Staffer

func (f fakeStaff) Lookup(ctx context.Context, email string) (staff.Staffer, bool) {
	s, ok := f[email]
	return s, ok
}

func ptr(i int64) *int64 {
	return &i
}

type harness struct {
	s        *foia.Server
	db       *inmemory.InMemory
	mail     *fakeMail
	notifier *fakeNotifier
	store    *storage.Memory
}

func newHarness(t *testing.T) *harness {
	return newHarnessWrapping(t, nil)
}

// newHarnessWrapping lets a test put a failing Database in front of the in memory one
func newHarnessWrapping(t *testing.T, wrap func(foia.Database) foia.Database) *harness {
	h := &harness{
		db:       inmemory.GetInMemoryDB(),
		mail:     &fakeMail{},
		notifier: &fakeNotifier{unknown: map[string]bool{}},
		store:    storage.NewMemory("https://files.example.com"),
	}

	mx := queue.NewMux()

	var db foia.Database = h.db
	if wrap != nil {
		db = wrap(db)
	}

	s, err := foia.New(foia.Config{
		Key:            "testexample12344",
		URL:            "https://foia.example.com",
		Email:          h.mail,
		AllowedDomains: []string{"newsroom.org"},
		UpdatesAddress: "foia@newsroom.org",
		Notifier:       h.notifier,
		Directory: fakeDirectory{matches: map[string]rolodex.Match{
			"clerk@city.gov": {ContactID: ptr(1), PersonID: ptr(2), OrganizationID: ptr(3), Name: "Jane Clerk", Organization: "City of Austin"},
		}},
		Staff: fakeStaff{
			"ada@newsroom.org":   {FirstName: "Ada", LastName: "Lovelace"},
			"grace@newsroom.org": {FirstName: "Grace", LastName: "Hopper"},
		},
		Queue:    queue.NewInline(mx),
		Store:    h.store,
		Dedup:    dedup.NewMemory(time.Hour),
		Location: time.FixedZone("CST", -6*60*60),
		JobKey:   "jobsecret",
	}, db)
	require.NoError(t, err)

	s.RegisterTasks(mx)
	h.s = s

	return h
}

func mail(token, subject, to string) url.Values {
	return url.Values{
		"token":         {token},
		"timestamp":     {"1551711600"},
		"signature":     {"ignored"},
		"sender":        {"Ada Lovelace <ada@newsroom.org>"},
		"To":            {to},
		"Date":          {"Mon, 04 Mar 2019 09:00:00 -0600"},
		"subject":       {subject},
		"body-plain":    {"Under the Texas Public Information Act, I request the following records."},
		"stripped-text": {"Under the Texas Public Information Act, I request the following records."},
		"body-html":     {`<p>Under the Texas Public Information Act, <a href="https://example.com">I request</a></p>`},
	}
}

func (h *harness) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	rr := httptest.NewRecorder()
	h.s.Router.ServeHTTP(rr, r)
	return rr
}

func (h *harness) postMail(v url.Values) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, "/mailhook/", []byte(v.Encode()), "application/x-www-form-urlencoded")
}

func (h *harness) doJSON(method, target string, v interface{}) *httptest.ResponseRecorder {
	var body []byte
	if v != nil {
		body, _ = json.Marshal(v)
	}
	return h.do(method, target, body, "application/json")
}

// receive posts a valid email and returns it along with its prompt
func (h *harness) receive(t *testing.T, token, subject, to string) (foia.InboundEmail, mailgunmail.Prompt) {
	rr := h.postMail(mail(token, subject, to))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p := h.mail.last(t)
	e, err := h.db.GetEmailByUUID(emailUUID(t, p.NewURL))
	require.NoError(t, err)

	return e, p
}

// fileRequest receives an email and classifies it as a new request
func (h *harness) fileRequest(t *testing.T, token, subject, to string) (foia.InboundEmail, foia.RequestDetail) {
	e, p := h.receive(t, token, subject, to)

	rr := h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var d foia.RequestDetail
	decodeResult(t, rr, &d)
	return e, d
}

func requestURI(t *testing.T, link string) string {
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.RequestURI()
}

func emailUUID(t *testing.T, link string) string {
	u, err := url.Parse(link)
	require.NoError(t, err)
	parts := strings.Split(u.Path, "/")
	require.True(t, len(parts) > 4, "unexpected link %v", link)
	return parts[4]
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	var res struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res), rr.Body.String())
	require.True(t, res.Success, rr.Body.String())
	require.NoError(t, json.Unmarshal(res.Result, v))
}

func TestMailhook_SavesEmailWithSenderAndRecipients(t *testing.T) {
	h := newHarness(t)

	e, p := h.receive(t, "tk1", "Police overtime records request",
		"Jane Clerk <clerk@city.gov>, Grace Hopper <grace@newsroom.org>, records@county.gov, not-an-address")

	sender, err := h.db.GetSenderByEmail("ada@newsroom.org")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", sender.String())
	assert.Equal(t, sender.ID, e.SenderID)

	assert.Equal(t, "Police overtime records request", e.Subject)
	assert.Equal(t, time.Date(2019, time.March, 4, 15, 0, 0, 0, time.UTC), e.Sent)
	assert.False(t, e.Processed)
	assert.Contains(t, e.HTML, `target="_blank"`)

	rs, err := h.db.GetEmailRecipients(e.ID)
	require.NoError(t, err)
	if assert.Len(t, rs, 2) {
		assert.Equal(t, "clerk@city.gov", rs[0].Email)
		assert.Equal(t, "City of Austin (Jane Clerk)", rs[0].String())
		assert.True(t, rs[0].HasRolodexMatch())
		assert.Equal(t, "records@county.gov", rs[1].Email)
		assert.False(t, rs[1].HasRolodexMatch())
	}

	assert.Equal(t, "ada@newsroom.org", p.To)
	assert.Equal(t, "Ada", p.SenderName)
	assert.Equal(t, []string{"City of Austin (Jane Clerk)", "records@county.gov"}, p.Recipients)
	assert.True(t, strings.HasPrefix(p.NewURL, "https://foia.example.com/api/v1/emails/"+e.UUID+"/request/?token="))
	assert.True(t, strings.HasPrefix(p.ExistingURL, "https://foia.example.com/api/v1/emails/"+e.UUID+"/matches/?token="))
}

func TestMailhook_ReusesExistingContacts(t *testing.T) {
	h := newHarness(t)

	first, _ := h.receive(t, "tk1", "First", "clerk@city.gov")
	second, _ := h.receive(t, "tk2", "Second", "CLERK@city.gov")

	assert.Equal(t, first.SenderID, second.SenderID)

	rs1, err := h.db.GetEmailRecipients(first.ID)
	require.NoError(t, err)
	rs2, err := h.db.GetEmailRecipients(second.ID)
	require.NoError(t, err)
	assert.Equal(t, rs1, rs2)

	all, err := h.db.ListRecipients()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMailhook_UndisclosedRecipients(t *testing.T) {
	h := newHarness(t)

	e, p := h.receive(t, "tk1", "Bcc'd request", "undisclosed-recipients:;")

	rs, err := h.db.GetEmailRecipients(e.ID)
	require.NoError(t, err)
	assert.Empty(t, rs)
	assert.Empty(t, p.Recipients)
}

func TestMailhook_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		modify func(v url.Values)
		reject bool
		code   int
		body   string
	}{
		{
			name:   "bad signature",
			modify: func(v url.Values) {},
			reject: true,
			code:   http.StatusForbidden,
			body:   "Failed Mailgun token validation.",
		},
		{
			name:   "missing sender",
			modify: func(v url.Values) { v.Del("sender") },
			code:   http.StatusBadRequest,
			body:   "Missing a required field.",
		},
		{
			name:   "missing to",
			modify: func(v url.Values) { v.Del("To") },
			code:   http.StatusBadRequest,
			body:   "Missing a required field.",
		},
		{
			name:   "missing date",
			modify: func(v url.Values) { v.Del("Date") },
			code:   http.StatusBadRequest,
			body:   "Missing a required field.",
		},
		{
			name:   "outside sender",
			modify: func(v url.Values) { v.Set("sender", "Mallory <mallory@example.com>") },
			code:   http.StatusForbidden,
			body:   `"mallory@example.com" is not authorized to use FOIAtracker.`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			h.mail.reject = test.reject

			v := mail("tk1", "Rejected", "clerk@city.gov")
			test.modify(v)

			rr := h.postMail(v)
			assert.Equal(t, test.code, rr.Code)
			assert.Equal(t, test.body, strings.TrimSpace(rr.Body.String()))

			assert.Empty(t, h.mail.prompts)
			_, err := h.db.GetSenderByEmail("ada@newsroom.org")
			assert.Equal(t, foia.ErrNotFound, err)
			rs, err := h.db.ListRecipients()
			assert.NoError(t, err)
			assert.Empty(t, rs)
		})
	}
}

func TestMailhook_MethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/mailhook/", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMailhook_IgnoresRedelivery(t *testing.T) {
	h := newHarness(t)

	v := mail("same-token", "Once", "clerk@city.gov")

	assert.Equal(t, http.StatusOK, h.postMail(v).Code)
	assert.Equal(t, http.StatusOK, h.postMail(v).Code)

	assert.Len(t, h.mail.prompts, 1)
}

// failingDB fails the first n calls of the overridden methods
type failingDB struct {
	foia.Database
	saveEmail    int
	saveReminder int
	updates      int
}

func (f *failingDB) SaveNewEmail(e foia.InboundEmail) (foia.InboundEmail, error) {
	if f.saveEmail > 0 {
		f.saveEmail--
		return foia.InboundEmail{}, fmt.Errorf("connection reset")
	}
	return f.Database.SaveNewEmail(e)
}

func (f *failingDB) SaveNewReminder(r foia.Reminder) (foia.Reminder, error) {
	if f.saveReminder > 0 {
		f.saveReminder--
		return foia.Reminder{}, fmt.Errorf("connection reset")
	}
	return f.Database.SaveNewReminder(r)
}

func (f *failingDB) UpdateRequest(r foia.Request) error {
	if f.updates > 0 {
		f.updates--
		return fmt.Errorf("connection reset")
	}
	return f.Database.UpdateRequest(r)
}

func TestMailhook_RetryAfterFailedSave(t *testing.T) {
	fdb := &failingDB{saveEmail: 1}
	h := newHarnessWrapping(t, func(db foia.Database) foia.Database {
		fdb.Database = db
		return fdb
	})

	v := mail("tok-1", "Retried", "clerk@city.gov")

	assert.Equal(t, http.StatusInternalServerError, h.postMail(v).Code)
	assert.Empty(t, h.mail.prompts)

	assert.Equal(t, http.StatusOK, h.postMail(v).Code)
	e, err := h.db.GetEmailByUUID(emailUUID(t, h.mail.last(t).NewURL))
	require.NoError(t, err)
	assert.Equal(t, "Retried", e.Subject)

	// a third delivery is a real duplicate
	assert.Equal(t, http.StatusOK, h.postMail(v).Code)
	assert.Len(t, h.mail.prompts, 1)
}

func TestMailhook_LogsRejectedSender(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	h := newHarness(t)

	v := mail("tk1", "Hello", "clerk@city.gov")
	v.Set("sender", "someone@gmail.com")
	require.Equal(t, http.StatusForbidden, h.postMail(v).Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "someone@gmail.com", entry.Data["sender"])
	assert.Equal(t, "Mailhook: rejected email from outside the newsroom", entry.Message)
}

func TestMailhook_UnparsableDateIsNow(t *testing.T) {
	h := newHarness(t)

	v := mail("tk1", "Undated", "clerk@city.gov")
	v.Set("Date", "sometime last week")

	before := time.Now().UTC().Add(-time.Minute)
	rr := h.postMail(v)
	require.Equal(t, http.StatusOK, rr.Code)

	e, err := h.db.GetEmailByUUID(emailUUID(t, h.mail.last(t).NewURL))
	require.NoError(t, err)
	assert.True(t, e.Sent.After(before))
}

func multipartMail(t *testing.T, v url.Values, files map[string]string) ([]byte, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, vals := range v {
		for _, val := range vals {
			require.NoError(t, w.WriteField(k, val))
		}
	}

	for field, name := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("contents of " + name))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestMailhook_Attachments(t *testing.T) {
	tests := []struct {
		name     string
		count    string
		files    map[string]string
		expected []string
	}{
		{
			name:     "all present",
			count:    "2",
			files:    map[string]string{"attachment-1": "letter.pdf", "attachment-2": "data.csv"},
			expected: []string{"letter.pdf", "data.csv"},
		},
		{
			name:     "one missing",
			count:    "2",
			files:    map[string]string{"attachment-2": "data.csv"},
			expected: []string{"data.csv"},
		},
		{
			name:  "malformed count",
			count: "two",
			files: map[string]string{"attachment-1": "letter.pdf"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)

			v := mail("tk1", "With files", "clerk@city.gov")
			v.Set("attachment-count", test.count)

			body, ct := multipartMail(t, v, test.files)
			rr := h.do(http.MethodPost, "/mailhook/", body, ct)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			e, err := h.db.GetEmailByUUID(emailUUID(t, h.mail.last(t).NewURL))
			require.NoError(t, err)

			as, err := h.db.GetAttachmentsByEmailID(e.ID)
			require.NoError(t, err)

			var names []string
			for _, a := range as {
				names = append(names, a.Filename)
				assert.True(t, strings.HasPrefix(a.URL, "https://files.example.com/"))

				_, content, ok := h.store.Get(a.Key)
				if assert.True(t, ok) {
					var got bytes.Buffer
					_, _ = got.ReadFrom(content)
					assert.Equal(t, "contents of "+a.Filename, got.String())
				}
			}
			assert.Equal(t, test.expected, names)
		})
	}
}

func TestClassification_NewRequest(t *testing.T) {
	h := newHarness(t)

	e, p := h.receive(t, "tk1", "Police overtime", "clerk@city.gov")

	rr := h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var d foia.RequestDetail
	decodeResult(t, rr, &d)

	assert.Equal(t, e.ID, d.EmailID)
	assert.Equal(t, "Police overtime", d.Subject)
	assert.Equal(t, time.Date(2019, time.March, 4, 0, 0, 0, 0, time.UTC), d.Sent)
	assert.Equal(t, foia.Pending, d.Status)
	assert.Equal(t, "Awaiting agency response", d.StatusLabel)
	assert.Equal(t, time.Date(2019, time.March, 19, 0, 0, 0, 0, time.UTC), d.Due.UTC())
	assert.Equal(t, "City of Austin (Jane Clerk)", d.RequestSummary.Recipients)
	if assert.Len(t, d.RecipientList, 1) {
		assert.Equal(t, "https://rolodex.example.com/api/people/2/", d.RecipientList[0].Links.Person)
	}
	if assert.NotNil(t, d.Reminder) {
		// ten business days on, 10am in Texas
		assert.Equal(t, time.Date(2019, time.March, 18, 16, 0, 0, 0, time.UTC), d.Reminder.ScheduledTime)
		assert.Nil(t, d.Reminder.SentTime)
	}

	stored, err := h.db.GetEmailByID(e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)

	// classifying twice hands back the same request
	rr = h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var again foia.RequestDetail
	decodeResult(t, rr, &again)
	assert.Equal(t, d.ID, again.ID)

	rs, err := h.db.ListRequests(foia.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	assert.Empty(t, h.notifier.posts)
}

func TestClassification_Token(t *testing.T) {
	h := newHarness(t)

	e, p := h.receive(t, "tk1", "Police overtime", "clerk@city.gov")
	other, _ := h.receive(t, "tk2", "Something else", "clerk@city.gov")

	tk, err := url.Parse(p.NewURL)
	require.NoError(t, err)
	token := tk.Query().Get("token")

	tests := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{name: "no token", target: "/api/v1/emails/" + e.UUID + "/matches/", code: http.StatusUnauthorized},
		{name: "garbage", target: "/api/v1/emails/" + e.UUID + "/matches/?token=nope", code: http.StatusUnauthorized},
		{name: "other email", target: "/api/v1/emails/" + other.UUID + "/matches/?token=" + token, code: http.StatusUnauthorized},
		{name: "query", target: "/api/v1/emails/" + e.UUID + "/matches/?token=" + token, code: http.StatusOK},
		{name: "header", target: "/api/v1/emails/" + e.UUID + "/matches/", header: token, code: http.StatusOK},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, test.target, nil)
			if test.header != "" {
				r.Header.Set(foia.TokenHeader, test.header)
			}

			rr := httptest.NewRecorder()
			h.s.Router.ServeHTTP(rr, r)

			assert.Equal(t, test.code, rr.Code, rr.Body.String())
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

type matchesResult struct {
	Classification string `json:"classification"`
	RequestID      *int64 `json:"request_id"`
	Matches        []struct {
		RequestID int64   `json:"request_id"`
		Score     float64 `json:"score"`
		Label     string  `json:"label"`
	} `json:"matches"`
}

func TestClassification_UpdateExisting(t *testing.T) {
	h := newHarness(t)

	_, original := h.fileRequest(t, "tk1", "Police overtime records request", "clerk@city.gov")
	_, unrelated := h.fileRequest(t, "tk2", "Library budget", "records@county.gov")

	reply, p := h.receive(t, "tk3", "RE: Police overtime", "clerk@city.gov")

	rr := h.do(http.MethodGet, requestURI(t, p.ExistingURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var m matchesResult
	decodeResult(t, rr, &m)
	assert.Equal(t, "needs_classification", m.Classification)
	assert.Nil(t, m.RequestID)
	if assert.Len(t, m.Matches, 2) {
		assert.Equal(t, original.ID, m.Matches[0].RequestID)
		assert.Equal(t, "Lovelace: Police overtime records request", m.Matches[0].Label)
		assert.True(t, m.Matches[0].Score >= 125, "score %v", m.Matches[0].Score)
		assert.Equal(t, unrelated.ID, m.Matches[1].RequestID)
	}

	rr = h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{
		"request_id":   original.ID,
		"status":       "denied",
		"update_date":  "2019-03-20",
		"amount_asked": "12.50",
		"notes":        "AG ruled against us",
		"email_uuid":   reply.UUID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	stored, err := h.db.GetEmailByID(reply.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)

	rr = h.do(http.MethodGet, requestURI(t, p.ExistingURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	m = matchesResult{}
	decodeResult(t, rr, &m)
	assert.Equal(t, "update_existing", m.Classification)
	if assert.NotNil(t, m.RequestID) {
		assert.Equal(t, original.ID, *m.RequestID)
	}
	assert.Empty(t, m.Matches)

	// the reply can't be filed as a new request any more
	rr = h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var d foia.RequestDetail
	decodeResult(t, rr, &d)
	assert.Equal(t, original.ID, d.ID)
	assert.Equal(t, foia.Denied, d.Status)
	assert.True(t, d.Complete)
	if assert.Len(t, d.Events, 1) {
		assert.Equal(t, "Denied by attorney general", d.Events[0].StatusLabel)
		assert.Equal(t, 12, d.Events[0].ElapsedBusinessDays)
		assert.Equal(t, "12.5", d.Events[0].AmountAsked.Decimal.String())
		assert.False(t, d.Events[0].AmountPaid.Valid)
	}

	// nor used for a second update
	rr = h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{
		"request_id":  original.ID,
		"status":      "relagc",
		"update_date": "2019-03-21",
		"email_uuid":  reply.UUID,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestEvents_Validation(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{name: "bad status", body: map[string]interface{}{"request_id": d.ID, "status": "lost", "update_date": "2019-03-20"}, code: http.StatusBadRequest},
		{name: "bad date", body: map[string]interface{}{"request_id": d.ID, "status": "denied", "update_date": "March 20"}, code: http.StatusBadRequest},
		{name: "no request", body: map[string]interface{}{"request_id": 9999, "status": "denied", "update_date": "2019-03-20"}, code: http.StatusBadRequest},
		{name: "no email", body: map[string]interface{}{"request_id": d.ID, "status": "denied", "update_date": "2019-03-20", "email_uuid": "missing"}, code: http.StatusBadRequest},
		{name: "unknown field", body: map[string]interface{}{"request_id": d.ID, "status": "denied", "update_date": "2019-03-20", "colour": "red"}, code: http.StatusBadRequest},
		{name: "ok", body: map[string]interface{}{"request_id": d.ID, "status": "kicked", "update_date": "2019-03-20"}, code: http.StatusCreated},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rr := h.doJSON(http.MethodPost, "/api/v1/events/", test.body)
			assert.Equal(t, test.code, rr.Code, rr.Body.String())
		})
	}
}

func TestEvents_Delete(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")

	rr := h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{"request_id": d.ID, "status": "norecs", "update_date": "2019-03-20"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var ev foia.EventDetail
	decodeResult(t, rr, &ev)

	rr = h.do(http.MethodDelete, fmt.Sprintf("/api/v1/events/%d/", ev.ID), nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodDelete, fmt.Sprintf("/api/v1/events/%d/", ev.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodGet, fmt.Sprintf("/api/v1/requests/%d/", d.ID), nil, "")
	var got foia.RequestDetail
	decodeResult(t, rr, &got)
	assert.Equal(t, foia.Pending, got.Status)
}

func TestRequests_CurrentStatusUsesUpdateDate(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")

	// the later update wins even though it's recorded first
	for _, ev := range []map[string]interface{}{
		{"request_id": d.ID, "status": "denied", "update_date": "2020-02-01"},
		{"request_id": d.ID, "status": "pending", "update_date": "2020-01-01"},
	} {
		require.Equal(t, http.StatusCreated, h.doJSON(http.MethodPost, "/api/v1/events/", ev).Code)
	}

	rr := h.do(http.MethodGet, fmt.Sprintf("/api/v1/requests/%d/", d.ID), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var got foia.RequestDetail
	decodeResult(t, rr, &got)
	assert.Equal(t, foia.Denied, got.Status)
}

func TestRequests_List(t *testing.T) {
	h := newHarness(t)
	_, open := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	_, done := h.fileRequest(t, "tk2", "Library budget", "records@county.gov")

	rr := h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{"request_id": done.ID, "status": "relagc", "update_date": "2019-03-10"})
	require.Equal(t, http.StatusCreated, rr.Code)

	ids := func(target string) []int64 {
		rr := h.do(http.MethodGet, target, nil, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var rs []foia.RequestSummary
		decodeResult(t, rr, &rs)

		out := []int64{}
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []int64{open.ID, done.ID}, ids("/api/v1/requests/"))
	assert.Equal(t, []int64{open.ID}, ids("/api/v1/requests/?status=pending"))
	assert.Equal(t, []int64{done.ID}, ids("/api/v1/requests/?status=complete"))
	assert.ElementsMatch(t, []int64{open.ID, done.ID}, ids("/api/v1/requests/?sender=ADA@newsroom.org"))
	assert.Empty(t, ids("/api/v1/requests/?sender=grace@newsroom.org"))
	assert.Equal(t, []int64{done.ID}, ids("/api/v1/requests/?q=library"))

	rr = h.do(http.MethodGet, "/api/v1/requests/?status=lost", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequests_UpdateAnnouncesOnce(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "undisclosed-recipients:;")

	// nobody to announce it to yet
	rr := h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", d.ID), map[string]interface{}{"notes": "bcc'd the clerk"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, h.notifier.posts)

	rr = h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", d.ID), map[string]interface{}{
		"subject":    "Police overtime 2018",
		"sent":       "2019-03-05",
		"agency_id":  "R-1234",
		"recipients": []string{"clerk@city.gov", "grace@newsroom.org"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got foia.RequestDetail
	decodeResult(t, rr, &got)
	assert.Equal(t, "Police overtime 2018", got.Subject)
	assert.Equal(t, "bcc'd the clerk", got.Notes)
	assert.Equal(t, "R-1234", got.AgencyID)
	assert.Equal(t, time.Date(2019, time.March, 5, 0, 0, 0, 0, time.UTC), got.Sent)
	assert.True(t, got.Notified)
	assert.Equal(t, "City of Austin (Jane Clerk)", got.RequestSummary.Recipients)

	if assert.Len(t, h.notifier.posts, 1) {
		n := h.notifier.posts[0]
		assert.Equal(t, "Ada Lovelace", n.Sender)
		assert.Equal(t, "ada@newsroom.org", n.SenderEmail)
		assert.Equal(t, "Police overtime 2018", n.Subject)
		assert.Equal(t, fmt.Sprintf("https://foia.example.com/api/v1/requests/%d/", d.ID), n.URL)
		assert.Equal(t, "City of Austin (Jane Clerk)", n.Recipients)
		assert.Equal(t, time.Date(2019, time.March, 20, 0, 0, 0, 0, time.UTC), n.Due.UTC())
	}

	rr = h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", d.ID), map[string]interface{}{"notes": "again"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, h.notifier.posts, 1)
}

func TestRequests_UpdateValidation(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	target := fmt.Sprintf("/api/v1/requests/%d/", d.ID)

	assert.Equal(t, http.StatusBadRequest, h.doJSON(http.MethodPut, target, map[string]interface{}{"subject": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, h.doJSON(http.MethodPut, target, map[string]interface{}{"sent": "yesterday"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.doJSON(http.MethodPut, target, map[string]interface{}{"project": "missing"}).Code)
	assert.Equal(t, http.StatusNotFound, h.doJSON(http.MethodPut, "/api/v1/requests/9999/", map[string]interface{}{"notes": "x"}).Code)
}

func TestRequests_Delete(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	target := fmt.Sprintf("/api/v1/requests/%d/", d.ID)

	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, target, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, target, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, target, nil, "").Code)

	_, err := h.db.GetReminderByRequestID(d.ID)
	assert.Equal(t, foia.ErrNotFound, err)
}

func TestRequests_RescheduleReminder(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	target := fmt.Sprintf("/api/v1/requests/%d/reminder/", d.ID)

	at := time.Date(2019, time.April, 1, 15, 0, 0, 0, time.UTC)
	rr := h.doJSON(http.MethodPut, target, map[string]interface{}{"scheduled_time": at})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rm, err := h.db.GetReminderByRequestID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, at, rm.ScheduledTime)

	sent, err := h.s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	rr = h.doJSON(http.MethodPut, target, map[string]interface{}{"scheduled_time": at.AddDate(0, 0, 7)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = h.doJSON(http.MethodPut, "/api/v1/requests/9999/reminder/", map[string]interface{}{"scheduled_time": at})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.doJSON(http.MethodPut, target, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendReminders(t *testing.T) {
	h := newHarness(t)
	_, pending := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	_, done := h.fileRequest(t, "tk2", "Library budget", "records@county.gov")

	rr := h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{"request_id": done.ID, "status": "wthdrwn", "update_date": "2019-03-10"})
	require.Equal(t, http.StatusCreated, rr.Code)

	sent, err := h.s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	if assert.Len(t, h.notifier.reminders, 1) {
		assert.Equal(t, fmt.Sprintf("ada@newsroom.org: Reminder: It's time to check in on one of your records requests: \"Police overtime\". "+
			"See the <https://foia.example.com/api/v1/requests/%d/|request on FOIAtracker> for details and don't forget to send updates to `foia@newsroom.org`", pending.ID),
			strings.TrimSpace(h.notifier.reminders[0]))
	}

	for _, id := range []int64{pending.ID, done.ID} {
		rm, err := h.db.GetReminderByRequestID(id)
		require.NoError(t, err)
		assert.NotNil(t, rm.SentTime, "reminder for request %v should be marked sent", id)
	}

	// a second sweep has nothing left to do
	sent, err = h.s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Len(t, h.notifier.reminders, 1)
}

func TestSendReminders_UnknownChatUser(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	h.notifier.unknown["ada@newsroom.org"] = true

	sent, err := h.s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	rm, err := h.db.GetReminderByRequestID(d.ID)
	require.NoError(t, err)
	assert.NotNil(t, rm.SentTime)
}

func TestProjects(t *testing.T) {
	h := newHarness(t)

	var slugs []string
	for i := 0; i < 3; i++ {
		rr := h.doJSON(http.MethodPost, "/api/v1/projects/", map[string]interface{}{
			"name":          "Annual Audit",
			"description":   "Looking at the books",
			"collaborators": []string{"grace@newsroom.org", "ada@newsroom.org"},
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var p foia.Project
		decodeResult(t, rr, &p)
		slugs = append(slugs, p.Slug)
	}

	assert.Equal(t, []string{"annual-audit", "annual-audit-2", "annual-audit-3"}, slugs)

	_, open := h.fileRequest(t, "tk1", "Audit working papers", "clerk@city.gov")
	_, done := h.fileRequest(t, "tk2", "Audit letters", "clerk@city.gov")

	for _, id := range []int64{open.ID, done.ID} {
		rr := h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", id), map[string]interface{}{"project": "annual-audit"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr := h.doJSON(http.MethodPost, "/api/v1/events/", map[string]interface{}{"request_id": done.ID, "status": "relagc", "update_date": "2019-03-10"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(http.MethodGet, "/api/v1/projects/annual-audit/", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var d foia.ProjectDetail
	decodeResult(t, rr, &d)
	assert.Equal(t, "Annual Audit", d.Name)
	if assert.Len(t, d.Collaborators, 2) {
		assert.Equal(t, "Grace Hopper", d.Collaborators[0].String())
		assert.Equal(t, "Ada Lovelace", d.Collaborators[1].String())
	}
	if assert.Len(t, d.Pending, 1) {
		assert.Equal(t, open.ID, d.Pending[0].ID)
	}
	if assert.Len(t, d.Finished, 1) {
		assert.Equal(t, done.ID, d.Finished[0].ID)
	}
	assert.Len(t, d.RecentUpdates, 1)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/projects/missing/", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.doJSON(http.MethodPost, "/api/v1/projects/", map[string]interface{}{"name": ""}).Code)
	assert.Equal(t, http.StatusBadRequest, h.doJSON(http.MethodPost, "/api/v1/projects/", map[string]interface{}{"name": "X", "collaborators": []string{"nobody"}}).Code)
}

func TestProjects_SharedProjectBoostsMatches(t *testing.T) {
	h := newHarness(t)

	rr := h.doJSON(http.MethodPost, "/api/v1/projects/", map[string]interface{}{
		"name":          "Water",
		"collaborators": []string{"ada@newsroom.org", "grace@newsroom.org"},
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	_, d := h.fileRequest(t, "tk1", "Water quality tests", "clerk@city.gov")
	rr = h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", d.ID), map[string]interface{}{"project": "water"})
	require.Equal(t, http.StatusOK, rr.Code)

	v := mail("tk2", "RE: Water quality tests", "clerk@city.gov")
	v.Set("sender", "grace@newsroom.org")
	require.Equal(t, http.StatusOK, h.postMail(v).Code)

	rr = h.do(http.MethodGet, requestURI(t, h.mail.last(t).ExistingURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var m matchesResult
	decodeResult(t, rr, &m)
	if assert.Len(t, m.Matches, 1) {
		assert.Equal(t, float64(120), m.Matches[0].Score)
	}
}

func TestSyncRecipients(t *testing.T) {
	h := newHarness(t)
	h.receive(t, "tk1", "Police overtime", "clerk@city.gov, records@county.gov")

	// the clerk moved on since we first saw them
	r, err := h.db.GetRecipientByEmail("clerk@city.gov")
	require.NoError(t, err)
	r.Name = "Stale Name"
	require.NoError(t, h.db.UpdateRecipient(r))

	n, err := h.s.SyncRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err = h.db.GetRecipientByEmail("clerk@city.gov")
	require.NoError(t, err)
	assert.Equal(t, "Jane Clerk", r.Name)
}

func TestPing(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PONG", rr.Body.String())
}

func TestJobs(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		target string
		key    string
		code   int
	}{
		{"reminders without key", "/api/v1/jobs/send-reminders/", "", http.StatusUnauthorized},
		{"reminders wrong key", "/api/v1/jobs/send-reminders/", "nope", http.StatusUnauthorized},
		{"reminders", "/api/v1/jobs/send-reminders/", "jobsecret", http.StatusOK},
		{"sync without key", "/api/v1/jobs/sync-recipients/", "", http.StatusUnauthorized},
		{"sync", "/api/v1/jobs/sync-recipients/", "jobsecret", http.StatusOK},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, test.target, nil)
			if test.key != "" {
				r.Header.Set(foia.JobKeyHeader, test.key)
			}

			rr := httptest.NewRecorder()
			h.s.Router.ServeHTTP(rr, r)

			assert.Equal(t, test.code, rr.Code, rr.Body.String())
		})
	}
}

func TestClassification_LinkFollowedFromEmail(t *testing.T) {
	h := newHarness(t)
	_, p := h.receive(t, "tk1", "Police overtime", "clerk@city.gov")

	rr := h.do(http.MethodGet, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var d foia.RequestDetail
	decodeResult(t, rr, &d)
	assert.Equal(t, "Police overtime", d.Subject)

	rr = h.do(http.MethodGet, requestURI(t, p.NewURL), nil, "")
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestClassification_FinishesAfterFailedReminder(t *testing.T) {
	fdb := &failingDB{saveReminder: 1}
	h := newHarnessWrapping(t, func(db foia.Database) foia.Database {
		fdb.Database = db
		return fdb
	})

	e, p := h.receive(t, "tk1", "Police overtime", "clerk@city.gov")

	rr := h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusInternalServerError, rr.Code, rr.Body.String())

	req, err := h.db.GetRequestByEmailID(e.ID)
	require.NoError(t, err)
	_, err = h.db.GetReminderByRequestID(req.ID)
	assert.Equal(t, foia.ErrNotFound, err)

	rr = h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rm, err := h.db.GetReminderByRequestID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, time.March, 18, 16, 0, 0, 0, time.UTC), rm.ScheduledTime)

	e, err = h.db.GetEmailByID(e.ID)
	require.NoError(t, err)
	assert.True(t, e.Processed)

	// once finished the link is a plain lookup again
	rr = h.do(http.MethodPost, requestURI(t, p.NewURL), nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func recipientEmails(t *testing.T, h *harness, requestID int64) []string {
	rs, err := h.db.GetRequestRecipients(requestID)
	require.NoError(t, err)

	var out []string
	for _, r := range rs {
		out = append(out, r.Email)
	}
	return out
}

func TestRequests_UpdateRecipients(t *testing.T) {
	h := newHarness(t)
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")
	target := fmt.Sprintf("/api/v1/requests/%d/", d.ID)

	for _, bad := range []string{"", "undisclosed-recipients", "Jane Clerk"} {
		rr := h.doJSON(http.MethodPut, target, map[string]interface{}{
			"notes":      "changed",
			"recipients": []string{"grace@newsroom.org", bad},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code, "recipient %q", bad)
	}

	req, err := h.db.GetRequestByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "", req.Notes)
	assert.Equal(t, []string{"clerk@city.gov"}, recipientEmails(t, h, d.ID))

	rr := h.doJSON(http.MethodPut, target, map[string]interface{}{
		"recipients": []string{"Records Desk <records@city.gov>"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"records@city.gov"}, recipientEmails(t, h, d.ID))
}

func TestRequests_UpdateFailureKeepsRecipients(t *testing.T) {
	fdb := &failingDB{updates: 1}
	h := newHarnessWrapping(t, func(db foia.Database) foia.Database {
		fdb.Database = db
		return fdb
	})
	_, d := h.fileRequest(t, "tk1", "Police overtime", "clerk@city.gov")

	rr := h.doJSON(http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/", d.ID), map[string]interface{}{
		"recipients": []string{"records@city.gov"},
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, []string{"clerk@city.gov"}, recipientEmails(t, h, d.ID))
}
