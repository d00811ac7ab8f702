package flow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectorKind says which fields of a Selector are meaningful.
type SelectorKind int

const (
	ByText SelectorKind = iota
	ByXPath
	ByResourceID
	ByResourceIDAndText
)

// String returns the string representation of SelectorKind
func (k SelectorKind) String() string {
	switch k {
	case ByText:
		return "text"
	case ByXPath:
		return "xpath"
	case ByResourceID:
		return "id"
	case ByResourceIDAndText:
		return "id+text"
	default:
		return "unknown"
	}
}

// Selector identifies one kind of element lookup. Build it with the
// constructors, or let YAML decoding pick the kind from the fields present.
type Selector struct {
	Kind       SelectorKind `yaml:"-"`
	Text       string       `yaml:"text"`
	ResourceID string       `yaml:"id"`
	XPath      string       `yaml:"xpath"`
	Index      int          `yaml:"index"` // which match to act on
}

// Text selects elements whose text attribute equals text.
func Text(text string) Selector {
	return Selector{Kind: ByText, Text: text}
}

// XPath selects elements with a raw XPath expression.
func XPath(expr string) Selector {
	return Selector{Kind: ByXPath, XPath: expr}
}

// ResourceID selects elements by resource-id.
func ResourceID(id string) Selector {
	return Selector{Kind: ByResourceID, ResourceID: id}
}

// ResourceIDAndText selects elements matching both resource-id and text.
func ResourceIDAndText(id, text string) Selector {
	return Selector{Kind: ByResourceIDAndText, ResourceID: id, Text: text}
}

// selectorRaw is used for YAML parsing to accept the resourceId alias.
type selectorRaw struct {
	Text       string `yaml:"text"`
	ID         string `yaml:"id"`
	ResourceID string `yaml:"resourceId"`
	XPath      string `yaml:"xpath"`
	Index      int    `yaml:"index"`
}

// UnmarshalYAML allows Selector to be unmarshaled from string or struct.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Text(node.Value)
		return nil
	}

	var raw selectorRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}

	s.Text = raw.Text
	s.ResourceID = raw.ID
	if s.ResourceID == "" {
		s.ResourceID = raw.ResourceID
	}
	s.XPath = raw.XPath
	s.Index = raw.Index
	return s.Resolve()
}

// Resolve sets Kind from the populated fields.
func (s *Selector) Resolve() error {
	switch {
	case s.XPath != "" && (s.Text != "" || s.ResourceID != ""):
		return fmt.Errorf("xpath selector cannot be combined with text or id")
	case s.XPath != "":
		s.Kind = ByXPath
	case s.ResourceID != "" && s.Text != "":
		s.Kind = ByResourceIDAndText
	case s.ResourceID != "":
		s.Kind = ByResourceID
	case s.Text != "":
		s.Kind = ByText
	default:
		return fmt.Errorf("selector needs text, id or xpath")
	}
	if s.Index < 0 {
		return fmt.Errorf("selector index must not be negative")
	}
	return nil
}

// IsEmpty returns true if no selector properties are set.
func (s Selector) IsEmpty() bool {
	return s.Text == "" && s.ResourceID == "" && s.XPath == ""
}

// ToXPath renders the selector as an XPath expression over a uiautomator
// hierarchy dump.
func (s Selector) ToXPath() string {
	switch s.Kind {
	case ByXPath:
		return s.XPath
	case ByResourceID:
		return fmt.Sprintf("//*[@resource-id=%s]", QuoteXPath(s.ResourceID))
	case ByResourceIDAndText:
		return fmt.Sprintf("//*[@resource-id=%s and @text=%s]", QuoteXPath(s.ResourceID), QuoteXPath(s.Text))
	default:
		return fmt.Sprintf("//*[@text=%s]", QuoteXPath(s.Text))
	}
}

// Describe returns a quoted description like text="value" or id="value".
func (s Selector) Describe() string {
	switch s.Kind {
	case ByXPath:
		return "xpath=\"" + s.XPath + "\""
	case ByResourceID:
		return "id=\"" + s.ResourceID + "\""
	case ByResourceIDAndText:
		return "id=\"" + s.ResourceID + "\" text=\"" + s.Text + "\""
	default:
		return "text=\"" + s.Text + "\""
	}
}

// QuoteXPath returns v as an XPath string literal. XPath 1.0 has no escape
// sequences, so values holding both quote kinds are built with concat().
func QuoteXPath(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}

	parts := strings.Split(v, "'")
	args := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
