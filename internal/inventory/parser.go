package inventory

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const defaultPrice = "Contact for price"

var rupeePrefix = regexp.MustCompile(`(?i)rs\.?`)

// ParseListings extracts available vehicles from the listing page.
//
// Each listing is a div.main-car card. A card whose img.car-image carries
// the carstatus class is sold and skipped. The detail URL comes from the
// anchor wrapping the image and must contain listingPath; relative URLs
// are resolved against baseURL.
func ParseListings(r io.Reader, baseURL, listingPath string) ([]Vehicle, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var out []Vehicle
	for _, card := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "main-car")
	}) {
		if v, ok := parseCard(card, baseURL, listingPath); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func parseCard(card *html.Node, baseURL, listingPath string) (Vehicle, bool) {
	img := findFirst(card, func(n *html.Node) bool {
		return n.DataAtom == atom.Img && hasClass(n, "car-image")
	})
	if img == nil || hasClass(img, "carstatus") {
		return Vehicle{}, false
	}
	if img.Parent == nil || img.Parent.DataAtom != atom.A {
		return Vehicle{}, false
	}
	href := attr(img.Parent, "href")
	if listingPath != "" && !strings.Contains(href, listingPath) {
		return Vehicle{}, false
	}
	url := href
	if !strings.HasPrefix(href, "http") {
		url = baseURL + href
	}

	body := findFirst(card, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "car-text")
	})
	if body == nil {
		return Vehicle{}, false
	}

	var model string
	if h3 := findFirst(body, isElem(atom.H3)); h3 != nil {
		if a := findFirst(h3, isElem(atom.A)); a != nil {
			model = textOf(a)
		}
	}
	if model == "" {
		return Vehicle{}, false
	}

	v := Vehicle{Model: model, URL: url, Price: defaultPrice}
	if span := findFirst(body, isSpan("comment")); span != nil {
		v.Year = textOf(span)
	}

	var details []string
	for _, span := range findAll(body, isSpan("carbg")) {
		if t := textOf(span); t != "" {
			details = append(details, t)
		}
	}
	v.Details = strings.Join(details, " · ")

	if span := findFirst(body, isSpan("posted_by")); span != nil {
		if p := normalizePrice(textOf(span)); p != "" {
			v.Price = p
		}
	}
	return v, true
}

// normalizePrice repairs the rupee sign, which some responses deliver as "?" or "Rs.".
func normalizePrice(s string) string {
	s = strings.ReplaceAll(s, "?", "₹")
	s = rupeePrefix.ReplaceAllString(s, "₹")
	return strings.TrimSpace(s)
}

func isElem(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

func isSpan(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == atom.Span && hasClass(n, class) }
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if n := findFirst(c, match); n != nil {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textOf returns the node's text content with whitespace collapsed.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
