package stock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selectors for the stock page layout.
const (
	CurrentStockSelector = "#mw-customcollapsible-Current"
	containerSelector    = `div[class="fruit-stock"]`
	labelSelector        = `span[class*="Outline"]`
)

// ErrNoStockContainers means the page rendered but the current-stock region
// held no item containers. The layout changed or stock failed to render.
var ErrNoStockContainers = errors.New("stock: no stock containers found")

// Entry is one raw item read from the page, in document order.
type Entry struct {
	Name        string
	RarityLabel string
}

// Skip records a container that was dropped during extraction.
type Skip struct {
	Index  int // position among containers, 0-based
	Reason string
}

// Extraction is the one-shot result of reading a rendered page.
type Extraction struct {
	Entries []Entry
	Skipped []Skip
	// Containers is the number of item containers found, kept or not.
	Containers int
}

// Extract parses rendered HTML and returns every stock entry in document
// order. Containers missing a name or a rarity label are skipped and listed
// in Extraction.Skipped. An empty container list is ErrNoStockContainers.
func Extract(rawHTML string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("stock: parse HTML: %w", err)
	}

	containers := doc.Find(CurrentStockSelector).Find(containerSelector)
	if containers.Length() == 0 {
		return nil, ErrNoStockContainers
	}

	res := &Extraction{Containers: containers.Length()}
	containers.Each(func(i int, box *goquery.Selection) {
		label := box.Find(labelSelector).First()
		if label.Length() == 0 {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: "no outlined label"})
			return
		}

		name := firstLinkText(label)
		if name == "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: "missing name"})
			return
		}

		class, ok := label.Attr("class")
		if !ok || !strings.Contains(class, rarityDelimiter) {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: "missing rarity label"})
			return
		}

		res.Entries = append(res.Entries, Entry{Name: name, RarityLabel: class})
	})

	return res, nil
}

// firstLinkText returns the first non-blank text node that is a direct child
// of an anchor below sel.
func firstLinkText(sel *goquery.Selection) string {
	for _, a := range sel.Find("a").Nodes {
		for c := a.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.TextNode {
				continue
			}
			if text := strings.TrimSpace(c.Data); text != "" {
				return text
			}
		}
	}
	return ""
}
