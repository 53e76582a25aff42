// Package instance reads and writes instance documents and owns the naming
// of instance, savepoint and last-visited-index files.
//
// An instance document is XML:
//
//	<data id="household" version="2" instanceID="uuid:..." format="1">
//	  <name>Ada</name>
//	  <contact><phone>555</phone></contact>
//	  <members><mname>Bo</mname></members>
//	  <members><mname>Cy</mname></members>
//	</data>
//
// Savepoints use the same document with an index attribute on the root.
package instance

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/roach88/formwalk/internal/ir"
)

const rootElement = "data"

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

// Marshal encodes data as an instance document. A non-nil index marks the
// document as a savepoint positioned at that index.
func Marshal(data *ir.InstanceData, index *ir.FormIndex) ([]byte, error) {
	root := xmlNode{
		XMLName: xml.Name{Local: rootElement},
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: data.FormID},
			{Name: xml.Name{Local: "version"}, Value: data.FormVersion},
			{Name: xml.Name{Local: "instanceID"}, Value: data.InstanceID},
			{Name: xml.Name{Local: "format"}, Value: ir.InstanceFormatVersion},
		},
		Children: toXML(data.Nodes),
	}
	if index != nil {
		root.Attrs = append(root.Attrs, xml.Attr{Name: xml.Name{Local: "index"}, Value: index.String()})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode instance: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func toXML(nodes []ir.DataNode) []xmlNode {
	out := make([]xmlNode, len(nodes))
	for i, n := range nodes {
		out[i] = xmlNode{XMLName: xml.Name{Local: n.Name}, Text: n.Text, Children: toXML(n.Children)}
	}
	return out
}

// Decode parses an instance document. index is non-nil only for savepoints.
func Decode(r io.Reader) (*ir.InstanceData, *ir.FormIndex, error) {
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, nil, fmt.Errorf("decode instance: %w", err)
	}
	if root.XMLName.Local != rootElement {
		return nil, nil, fmt.Errorf("decode instance: unexpected root element <%s>", root.XMLName.Local)
	}

	data := &ir.InstanceData{Nodes: fromXML(root.Children)}
	var index *ir.FormIndex
	for _, a := range root.Attrs {
		switch a.Name.Local {
		case "id":
			data.FormID = a.Value
		case "version":
			data.FormVersion = a.Value
		case "instanceID":
			data.InstanceID = a.Value
		case "index":
			parsed, err := ir.ParseIndex(a.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("decode instance: %w", err)
			}
			index = &parsed
		}
	}
	return data, index, nil
}

// Unmarshal is Decode over a byte slice.
func Unmarshal(b []byte) (*ir.InstanceData, *ir.FormIndex, error) {
	return Decode(bytes.NewReader(b))
}

func fromXML(nodes []xmlNode) []ir.DataNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]ir.DataNode, len(nodes))
	for i, n := range nodes {
		dn := ir.DataNode{Name: n.XMLName.Local}
		if len(n.Children) > 0 {
			// whitespace between child elements is indentation
			dn.Children = fromXML(n.Children)
		} else {
			dn.Text = n.Text
		}
		out[i] = dn
	}
	return out
}
