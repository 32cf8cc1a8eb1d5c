package imagesearch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// NodeKind tags the variant held by a Node.
type NodeKind uint8

const (
	NullNode NodeKind = iota
	BoolNode
	NumberNode
	StringNode
	SequenceNode
	MappingNode
)

// maxDepth bounds nesting while decoding untrusted search documents.
const maxDepth = 256

// Field is one key/value pair of a mapping; document order is kept.
type Field struct {
	Key   string
	Value Node
}

// Node is a closed variant over JSON values.
type Node struct {
	Kind   NodeKind
	Bool   bool
	Num    json.Number
	Str    string
	Items  []Node
	Fields []Field
}

// Get returns the value under key when n is a mapping.
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != MappingNode {
		return Node{}, false
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// ParseNode decodes one JSON document into a Node tree.
func ParseNode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec, 0)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, errors.New("trailing data after JSON document")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder, depth int) (Node, error) {
	if depth > maxDepth {
		return Node{}, fmt.Errorf("document nested deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}
	switch v := tok.(type) {
	case nil:
		return Node{Kind: NullNode}, nil
	case bool:
		return Node{Kind: BoolNode, Bool: v}, nil
	case json.Number:
		return Node{Kind: NumberNode, Num: v}, nil
	case string:
		return Node{Kind: StringNode, Str: v}, nil
	case json.Delim:
		switch v {
		case '[':
			n := Node{Kind: SequenceNode}
			for dec.More() {
				child, err := decodeNode(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				n.Items = append(n.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return n, nil
		case '{':
			n := Node{Kind: MappingNode}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Node{}, fmt.Errorf("unexpected object key %v", kt)
				}
				child, err := decodeNode(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				n.Fields = append(n.Fields, Field{Key: key, Value: child})
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}
