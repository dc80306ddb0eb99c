package actor

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlForm is a form found on a page, with its current field values.
type htmlForm struct {
	action   *url.URL
	method   string
	values   url.Values
	fillable map[string]bool
}

// parseForm collects the submit target and the values a browser would send
// for sel. Unchecked boxes and button inputs are left out.
func parseForm(sel *goquery.Selection, pageURL *url.URL) (*htmlForm, error) {
	action := pageURL
	if raw, ok := sel.Attr("action"); ok && strings.TrimSpace(raw) != "" {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse form action %q: %w", raw, err)
		}
		action = pageURL.ResolveReference(ref)
	}

	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", http.MethodPost)))
	if method != http.MethodGet {
		method = http.MethodPost
	}

	f := &htmlForm{
		action:   action,
		method:   method,
		values:   url.Values{},
		fillable: make(map[string]bool),
	}

	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
		case "hidden":
		default:
			f.fillable[name] = true
		}
		f.values.Add(name, in.AttrOr("value", ""))
	})

	sel.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		name := ta.AttrOr("name", "")
		f.fillable[name] = true
		f.values.Set(name, ta.Text())
	})

	return f, nil
}

// set fills a field the user could type into.
func (f *htmlForm) set(name, value string) bool {
	if !f.fillable[name] {
		return false
	}
	f.values.Set(name, value)
	return true
}
