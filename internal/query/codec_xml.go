package query

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/orb-framework/orb-sub002/internal/canon"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// MarshalXML encodes an expression as XML. The document mirrors the dict
// form with typed elements:
//
//	<dict>
//	  <item key="column"><string>age</string></item>
//	  <item key="value"><int>18</int></item>
//	</dict>
//
// Dict items are written in canonical key order.
func MarshalXML(e Expr) ([]byte, error) {
	d, err := ToDict(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := writeXMLValue(enc, d); err != nil {
		return nil, fmt.Errorf("marshal xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("marshal xml: %w", err)
	}
	return buf.Bytes(), nil
}

func writeXMLValue(enc *xml.Encoder, v any) error {
	switch val := v.(type) {
	case nil:
		return enc.EncodeElement(struct{}{}, xml.StartElement{Name: xml.Name{Local: "null"}})
	case bool:
		return encodeXMLText(enc, "bool", strconv.FormatBool(val))
	case int64:
		return encodeXMLText(enc, "int", strconv.FormatInt(val, 10))
	case float64:
		return encodeXMLText(enc, "float", strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		return encodeXMLText(enc, "string", val)
	case []any:
		start := xml.StartElement{Name: xml.Name{Local: "list"}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, elem := range val {
			if err := writeXMLValue(enc, elem); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	case map[string]any:
		start := xml.StartElement{Name: xml.Name{Local: "dict"}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, k := range canon.SortedKeys(val) {
			item := xml.StartElement{
				Name: xml.Name{Local: "item"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "key"}, Value: k}},
			}
			if err := enc.EncodeToken(item); err != nil {
				return err
			}
			if err := writeXMLValue(enc, val[k]); err != nil {
				return fmt.Errorf("item %q: %w", k, err)
			}
			if err := enc.EncodeToken(item.End()); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

func encodeXMLText(enc *xml.Encoder, name, text string) error {
	return enc.EncodeElement(text, xml.StartElement{Name: xml.Name{Local: name}})
}

// UnmarshalXML decodes an expression written by MarshalXML.
func UnmarshalXML(data []byte, lookup schema.Lookup) (Expr, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	start, err := nextStart(dec)
	if err != nil {
		return nil, fmt.Errorf("unmarshal xml: %w", err)
	}
	v, err := readXMLValue(dec, start)
	if err != nil {
		return nil, fmt.Errorf("unmarshal xml: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal xml: expected dict at top level, got %T", v)
	}
	return FromDict(obj, lookup)
}

// nextStart skips to the next start element, or fails at an end element.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.EndElement:
			return xml.StartElement{}, errEndOfContainer
		}
	}
}

var errEndOfContainer = errors.New("end of container")

func readXMLValue(dec *xml.Decoder, start xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "null":
		return nil, dec.Skip()
	case "bool":
		text, err := readXMLText(dec)
		if err != nil {
			return nil, err
		}
		return strconv.ParseBool(text)
	case "int":
		text, err := readXMLText(dec)
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(text, 10, 64)
	case "float":
		text, err := readXMLText(dec)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(text, 64)
	case "string":
		return readXMLText(dec)
	case "list":
		list := []any{}
		for {
			child, err := nextStart(dec)
			if errors.Is(err, errEndOfContainer) {
				return list, nil
			}
			if err != nil {
				return nil, err
			}
			v, err := readXMLValue(dec, child)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
	case "dict":
		obj := map[string]any{}
		for {
			item, err := nextStart(dec)
			if errors.Is(err, errEndOfContainer) {
				return obj, nil
			}
			if err != nil {
				return nil, err
			}
			if item.Name.Local != "item" {
				return nil, fmt.Errorf("dict: unexpected element <%s>", item.Name.Local)
			}
			key, ok := xmlAttr(item, "key")
			if !ok {
				return nil, fmt.Errorf("dict: item without key")
			}
			inner, err := nextStart(dec)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", key, err)
			}
			v, err := readXMLValue(dec, inner)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", key, err)
			}
			obj[key] = v
			if err := dec.Skip(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown element <%s>", start.Name.Local)
	}
}

// readXMLText reads character data up to the end of the current element.
func readXMLText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("unexpected element <%s> in text", t.Name.Local)
		}
	}
}

func xmlAttr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
