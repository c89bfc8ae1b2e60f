package ingestion

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
	"github.com/docshare/backend/pkg/utils"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Fingerprint is the text-derived portion of a document's identity: cleaned
// text, a deduplicated token set and a content hash. The embedding comes
// from the analysis collaborator, not from here.
type Fingerprint struct {
	Title       string
	CleanText   string
	TokenSet    []string
	ContentHash string
}

type Fingerprinter struct{}

func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

func (f *Fingerprinter) Fingerprint(htmlContent string) (*Fingerprint, error) {
	cleanText := f.cleanHTML(htmlContent)
	if cleanText == "" {
		return nil, fmt.Errorf("no content extracted from HTML")
	}

	tokens, err := f.tokenize(cleanText)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize content: %w", err)
	}

	fp := &Fingerprint{
		Title:       f.extractTitle(htmlContent),
		CleanText:   cleanText,
		TokenSet:    tokens,
		ContentHash: utils.HashContent(cleanText),
	}

	logger.Debug("Document fingerprinted",
		zap.Int("text_length", len(cleanText)),
		zap.Int("tokens", len(tokens)),
	)

	return fp, nil
}

func (f *Fingerprinter) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (f *Fingerprinter) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

// tokenize lowercases word tokens and returns them as a sorted set, so two
// fingerprints of the same content are byte-identical.
func (f *Fingerprinter) tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, token := range doc.Tokens() {
		word := strings.ToLower(token.Text)
		if !isWord(word) {
			continue
		}
		seen[word] = struct{}{}
	}

	tokens := make([]string, 0, len(seen))
	for word := range seen {
		tokens = append(tokens, word)
	}
	sort.Strings(tokens)

	return tokens, nil
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
