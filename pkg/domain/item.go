package domain

import (
	"encoding/json"
	"fmt"
)

type ItemKind string

const (
	KindLink   ItemKind = "link"
	KindHeader ItemKind = "header"
	KindText   ItemKind = "text"
)

// ContentItem is one classified unit of a pasted line. The interface is
// sealed so the set of variants is closed at compile time.
type ContentItem interface {
	Kind() ItemKind
}

type Link struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

func (Link) Kind() ItemKind { return KindLink }

type Header struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

func (Header) Kind() ItemKind { return KindHeader }

type Text struct {
	Body string `json:"body"`
}

func (Text) Kind() ItemKind { return KindText }

// Items serializes as a tagged-variant array and round-trips exactly.
type Items []ContentItem

type itemEnvelope struct {
	Type  ItemKind `json:"type"`
	URL   string   `json:"url,omitempty"`
	Title string   `json:"title,omitempty"`
	Level int      `json:"level,omitempty"`
	Text  string   `json:"text,omitempty"`
	Body  string   `json:"body,omitempty"`
}

func (items Items) MarshalJSON() ([]byte, error) {
	envelopes := make([]itemEnvelope, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case Link:
			envelopes = append(envelopes, itemEnvelope{Type: KindLink, URL: v.URL, Title: v.Title})
		case Header:
			envelopes = append(envelopes, itemEnvelope{Type: KindHeader, Level: v.Level, Text: v.Text})
		case Text:
			envelopes = append(envelopes, itemEnvelope{Type: KindText, Body: v.Body})
		default:
			return nil, fmt.Errorf("unhandled content item kind %T", it)
		}
	}
	return json.Marshal(envelopes)
}

func (items *Items) UnmarshalJSON(data []byte) error {
	var envelopes []itemEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return err
	}
	out := make(Items, 0, len(envelopes))
	for _, e := range envelopes {
		switch e.Type {
		case KindLink:
			out = append(out, Link{URL: e.URL, Title: e.Title})
		case KindHeader:
			out = append(out, Header{Level: e.Level, Text: e.Text})
		case KindText:
			out = append(out, Text{Body: e.Body})
		default:
			return fmt.Errorf("unknown content item type %q", e.Type)
		}
	}
	*items = out
	return nil
}
