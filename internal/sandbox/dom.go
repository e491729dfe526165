package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DOM is the parsed form of a hardened document. Scripts see it through
// element proxies; writes are applied to the tree and recorded.
type DOM struct {
	doc     *goquery.Document
	changes []DOMChange
	mu      sync.RWMutex
}

// Script is one inline classic script in document order
type Script struct {
	Index int
	Body  string
}

// ParseDOM parses markup into a DOM
func ParseDOM(markup string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &DOM{doc: doc}, nil
}

// Scripts returns the inline scripts a browser would execute, in order.
// External (src) scripts and non-JavaScript types are skipped.
func (d *DOM) Scripts() []Script {
	var scripts []Script
	d.doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if !isClassicScript(s.AttrOr("type", "")) {
			return
		}
		scripts = append(scripts, Script{Index: i, Body: s.Text()})
	})
	return scripts
}

func isClassicScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "text/ecmascript", "application/ecmascript":
		return true
	default:
		return false
	}
}

// Query finds elements by CSS selector. Invalid selectors match nothing.
func (d *DOM) Query(selector string) *goquery.Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Find(selector)
}

// ByID finds the first element whose id attribute equals id
func (d *DOM) ByID(id string) *goquery.Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	}).First()
}

// Body returns the body element
func (d *DOM) Body() *goquery.Selection {
	return d.Query("body").First()
}

// Head returns the head element
func (d *DOM) Head() *goquery.Selection {
	return d.Query("head").First()
}

// Root returns the html element
func (d *DOM) Root() *goquery.Selection {
	return d.Query("html").First()
}

// Title returns the document title text
func (d *DOM) Title() string {
	return strings.TrimSpace(d.Query("title").First().Text())
}

// CreateElement returns a detached element
func (d *DOM) CreateElement(tag string) *goquery.Selection {
	node := &html.Node{Type: html.ElementNode, Data: strings.ToLower(tag)}
	return goquery.NewDocumentFromNode(node).Selection
}

// Changes returns accumulated DOM changes
func (d *DOM) Changes() []DOMChange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DOMChange{}, d.changes...)
}

// RecordChange adds a DOM change
func (d *DOM) RecordChange(change DOMChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
}

// describe renders tag#id for change records
func describe(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok && id != "" {
		return name + "#" + id
	}
	return name
}
