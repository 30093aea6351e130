package email

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

//AddTargetBlank finds all a tags and add a target="_blank" attr to them so links in a stored email
// open in a new tab
func AddTargetBlank(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "AddTargetBlank: failed to create goquery doc")
	}

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("target", "_blank")
	})

	modifiedHTML, err := doc.Html()
	if err != nil {
		return "", errors.Wrap(err, "AddTargetBlank: failed to get html doc")
	}

	return modifiedHTML, nil
}

// TextFromHTML strips the tags from an html document and returns its text with runs of blank lines
// and indentation collapsed.
func TextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "TextFromHTML: failed to create goquery doc")
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	var lines []string
	for _, l := range strings.Split(doc.Text(), "\n") {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}

	return strings.Join(lines, "\n"), nil
}
