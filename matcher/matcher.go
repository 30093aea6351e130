// Package matcher ranks existing records requests against a reply email so the most likely pairing
// can be preselected for whoever classifies the email.
package matcher

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	sameSenderBoost    = 25
	sharedProjectBoost = 20

	minDaysApart = 30
	maxDaysApart = 180
)

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd):\s*`)
var genericLanguage = regexp.MustCompile(`(?i)(tpia|records*|foia|public\s+information)\s+request`)
var logSuffix = regexp.MustCompile(`(?i)^\s+logs*`)

// Reply is the email being paired with a request
type Reply struct {
	Subject          string
	Sent             time.Time
	SenderID         int64
	SenderProjectIDs []int64
}

// Candidate is an existing request that the reply could belong to
type Candidate struct {
	RequestID      int64     `json:"request_id" db:"request_id"`
	Subject        string    `json:"subject" db:"subject"`
	Sent           time.Time `json:"sent" db:"sent"`
	SenderID       int64     `json:"sender_id" db:"sender_id"`
	SenderLastName string    `json:"sender_last_name" db:"sender_last_name"`
	ProjectID      *int64    `json:"project_id" db:"project_id"`
}

// Ranked is a scored candidate
type Ranked struct {
	Candidate
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Label returns the display label for a candidate
func Label(c Candidate) string {
	return fmt.Sprintf("%s: %s", c.SenderLastName, c.Subject)
}

// Rank scores every candidate against the reply and returns them best first. Candidates with equal
// scores keep their relative order.
func Rank(reply Reply, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	cleaned := NormalizeSubject(reply.Subject)

	for _, c := range candidates {
		ranked = append(ranked, Ranked{
			Candidate: c,
			Score:     score(reply, cleaned, c),
			Label:     Label(c),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

// Score returns how likely it is that the reply belongs to the candidate request. The result isn't
// bounded by 100: sender and project boosts are added on top of the subject similarity.
func Score(reply Reply, c Candidate) float64 {
	return score(reply, NormalizeSubject(reply.Subject), c)
}

func score(reply Reply, cleanedReplySubject string, c Candidate) float64 {
	s := float64(TokenSortRatio(NormalizeSubject(c.Subject), cleanedReplySubject))

	if c.SenderID == reply.SenderID {
		s += sameSenderBoost
	} else if c.ProjectID != nil && containsID(reply.SenderProjectIDs, *c.ProjectID) {
		s += sharedProjectBoost
	}

	// requests less than a month old aren't penalised, anything past six months is scored towards zero
	apart := daysBetween(c.Sent, reply.Sent)
	if apart < minDaysApart {
		apart = minDaysApart
	}
	if apart > maxDaysApart {
		apart = maxDaysApart
	}
	normalized := apart - minDaysApart

	return s * (1 - float64(normalized)/float64(maxDaysApart))
}

// NormalizeSubject strips reply markers, generic request phrasing and anything that isn't a letter
// or a space from a subject line.
func NormalizeSubject(subject string) string {
	for {
		stripped := replyPrefix.ReplaceAllString(subject, "")
		if stripped == subject {
			break
		}
		subject = stripped
	}

	subject = stripGenericLanguage(subject)

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' {
			return r
		}
		return -1
	}, subject)
}

// stripGenericLanguage removes phrases like "records request" unless they're part of a
// "records request log".
func stripGenericLanguage(s string) string {
	var b strings.Builder
	last := 0

	for _, loc := range genericLanguage.FindAllStringIndex(s, -1) {
		if logSuffix.MatchString(s[loc[1]:]) {
			continue
		}

		b.WriteString(s[last:loc[0]])
		last = loc[1]
	}

	b.WriteString(s[last:])
	return b.String()
}

// TokenSortRatio compares two strings ignoring word order. Both strings are lower cased and their
// words sorted before an edit distance based similarity in [0, 100] is computed.
func TokenSortRatio(a, b string) int {
	a = sortTokens(a)
	b = sortTokens(b)

	if a == "" || b == "" {
		return 0
	}

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}

	dist := levenshtein.ComputeDistance(a, b)

	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

// daysBetween returns the number of calendar days from a to b using each time's own date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	ac := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bc := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	return int(bc.Sub(ac).Hours() / 24)
}
