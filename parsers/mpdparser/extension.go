package mpdparser

import (
	"encoding/xml"
	"strings"
)

// NamespaceDASH is the namespace of MPD elements
const NamespaceDASH = "urn:mpeg:dash:schema:mpd:2011"

func isDefaultNamespace(a ExtraAttr) bool {
	return a.Name.Space == "" && a.Name.Local == "xmlns"
}

func hasDefaultNamespace(l []ExtraAttr) bool {
	for _, a := range l {
		if isDefaultNamespace(a) {
			return true
		}
	}
	return false
}

// withoutDefaultNamespace drops the declaration of the DASH namespace, implied by the model.
// Another default namespace is kept.
func withoutDefaultNamespace(l []ExtraAttr) []ExtraAttr {
	kept := l[:0]
	for _, a := range l {
		if isDefaultNamespace(a) && a.Value == NamespaceDASH {
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// The decoder replaces prefixes by namespace URIs, and the encoder invents new prefixes
// when writing them back. To give back the manifest with its own prefixes, the decoder is
// fed with raw tokens where a prefixed name is kept as a single local name ("cenc:pssh").
// Namespace declarations are kept as attributes.

type prefixKeeper struct {
	d *xml.Decoder
}

func (p prefixKeeper) Token() (xml.Token, error) {
	t, err := p.d.RawToken()
	if err != nil {
		return t, err
	}
	switch tt := xml.CopyToken(t).(type) {
	case xml.StartElement:
		tt.Name = flatName(tt.Name)
		for i, a := range tt.Attr {
			if a.Name.Space != "xmlns" {
				tt.Attr[i].Name = flatName(a.Name)
			}
		}
		return tt, nil
	case xml.EndElement:
		tt.Name = flatName(tt.Name)
		return tt, nil
	default:
		return tt, nil
	}
}

func flatName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}

// newDecoder returns a decoder that keeps prefixes as written
func newDecoder(b []byte) *xml.Decoder {
	return xml.NewTokenDecoder(prefixKeeper{d: xml.NewDecoder(strings.NewReader(string(b)))})
}

// ExtraAttr is an attribute not described by the model.
// It is kept as is, and written back when the MPD is serialized.
type ExtraAttr xml.Attr

// UnmarshalXMLAttr implements xml.UnmarshalerAttr
func (a *ExtraAttr) UnmarshalXMLAttr(attr xml.Attr) error {
	*a = ExtraAttr(attr)
	return nil
}

// MarshalXMLAttr implements xml.MarshalerAttr
func (a ExtraAttr) MarshalXMLAttr(xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: writtenName(a.Name), Value: a.Value}, nil
}

func writtenName(n xml.Name) xml.Name {
	if n.Space == "xmlns" {
		return xml.Name{Local: "xmlns:" + n.Local}
	}
	return xml.Name{Local: n.Local}
}

// RawElement is an element not described by the model, kept with its attributes
// and its content.
type RawElement struct {
	XMLName xml.Name
	Attrs   []ExtraAttr
	Inner   string
}

// UnmarshalXML implements xml.Unmarshaler
func (e *RawElement) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.XMLName = xml.Name{Local: start.Name.Local}
	for _, a := range start.Attr {
		e.Attrs = append(e.Attrs, ExtraAttr(a))
	}

	var b strings.Builder
	enc := xml.NewEncoder(&b)
	depth := 0
	for {
		t, err := d.Token()
		if err != nil {
			return err
		}
		switch tt := t.(type) {
		case xml.StartElement:
			depth++
			se := xml.StartElement{Name: xml.Name{Local: tt.Name.Local}}
			for _, a := range tt.Attr {
				se.Attr = append(se.Attr, xml.Attr{Name: writtenName(a.Name), Value: a.Value})
			}
			err = enc.EncodeToken(se)
		case xml.EndElement:
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return err
				}
				e.Inner = b.String()
				return nil
			}
			depth--
			err = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: tt.Name.Local}})
		default:
			err = enc.EncodeToken(t)
		}
		if err != nil {
			return err
		}
	}
}

// MarshalXML implements xml.Marshaler
func (e RawElement) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: e.XMLName.Local}
	start.Attr = make([]xml.Attr, 0, len(e.Attrs))
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: writtenName(a.Name), Value: a.Value})
	}
	return enc.EncodeElement(struct {
		Inner string `xml:",innerxml"`
	}{e.Inner}, start)
}
