package blocks

import (
	"encoding/json"
	"fmt"
)

// Type is the kind of a content block.
type Type string

const (
	TypeParagraph    Type = "paragraph"
	TypeHeading1     Type = "heading_1"
	TypeHeading2     Type = "heading_2"
	TypeHeading3     Type = "heading_3"
	TypeBulletedList Type = "bulleted_list"
	TypeNumberedList Type = "numbered_list"
	TypeCheckbox     Type = "checkbox"
	TypeToggle       Type = "toggle"
	TypeQuote        Type = "quote"
	TypeCallout      Type = "callout"
	TypeImage        Type = "image"
	TypeVideo        Type = "video"
	TypeFile         Type = "file"
	TypeEmbed        Type = "embed"
	TypeCode         Type = "code"
	TypeDivider      Type = "divider"
	TypeTable        Type = "table"
	TypeTableRow     Type = "table_row"
)

// MaxDepth bounds the nesting of a block tree.
const MaxDepth = 32

var knownTypes = map[Type]struct{}{
	TypeParagraph:    {},
	TypeHeading1:     {},
	TypeHeading2:     {},
	TypeHeading3:     {},
	TypeBulletedList: {},
	TypeNumberedList: {},
	TypeCheckbox:     {},
	TypeToggle:       {},
	TypeQuote:        {},
	TypeCallout:      {},
	TypeImage:        {},
	TypeVideo:        {},
	TypeFile:         {},
	TypeEmbed:        {},
	TypeCode:         {},
	TypeDivider:      {},
	TypeTable:        {},
	TypeTableRow:     {},
}

// Valid reports whether t is one of the known block types.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Block is one node of a page's content tree.
//
// ParentID is informational. It is rewritten from the block's position by
// Normalize and is never used to rebuild the tree.
type Block struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Children   []Block                `json:"children,omitempty"`
	ParentID   string                 `json:"parentId,omitempty"`
}

// Marshal encodes a root block list. A nil list encodes as an empty array.
func Marshal(list []Block) ([]byte, error) {
	if list == nil {
		list = []Block{}
	}
	return json.Marshal(list)
}

// Unmarshal decodes a root block list.
func Unmarshal(data []byte) ([]Block, error) {
	if len(data) == 0 {
		return []Block{}, nil
	}
	var list []Block
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	if list == nil {
		list = []Block{}
	}
	return list, nil
}
