// Package posxml models the POSLOYALTY XML dialect. Vendor terminals emit
// sloppy, loosely nested documents, so requests are parsed into a small
// element tree searched by local name (anywhere in the document) rather than
// unmarshalled into rigid structs.
package posxml

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

var ErrNotXML = errors.New("posxml: document does not parse")

// Element is one node of a parsed document.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []*Element
}

// Parse decodes one document and returns its root element.
func Parse(doc string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	// Vendor payloads are not charset-declared; treat entities loosely.
	dec.Strict = false

	var root *Element
	var stack []*Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrNotXML, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					// Trailing second document; the extractor should have
					// split it off. Stop at the first complete root.
					return root, nil
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, ErrNotXML
	}
	return root, nil
}

// FindFirst returns the first element with the given local name, searching
// the subtree depth-first, the element itself included.
func (e *Element) FindFirst(tag string) *Element {
	if e == nil {
		return nil
	}
	if e.Tag == tag {
		return e
	}
	for _, c := range e.Children {
		if found := c.FindFirst(tag); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element with the given local name in document order.
func (e *Element) FindAll(tag string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	if e.Tag == tag {
		out = append(out, e)
	}
	for _, c := range e.Children {
		out = append(out, c.FindAll(tag)...)
	}
	return out
}

// TrimmedText returns the element's character data with surrounding
// whitespace removed; empty for a nil element.
func (e *Element) TrimmedText() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text)
}

// Attr returns a named attribute value, or "" when absent.
func (e *Element) Attr(name string) string {
	if e == nil {
		return ""
	}
	return e.Attrs[name]
}

// FirstText returns the trimmed text of the first element matching any of
// the given tags, plus whether one was found.
func (e *Element) FirstText(tags ...string) (string, bool) {
	for _, tag := range tags {
		if found := e.FindFirst(tag); found != nil {
			return found.TrimmedText(), true
		}
	}
	return "", false
}
