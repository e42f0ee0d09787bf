package blocks

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotFound is returned when a block id is not present in a tree.
var ErrNotFound = errors.New("block not found")

// DuplicateIDError reports a block id that occurs more than once in a page.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate block id %q", e.ID)
}

// InvalidError reports a structurally invalid block or edit.
type InvalidError struct {
	BlockID string
	Reason  string
}

func (e *InvalidError) Error() string {
	if e.BlockID == "" {
		return e.Reason
	}
	return fmt.Sprintf("block %q: %s", e.BlockID, e.Reason)
}

// Clone returns a deep copy of list, including property values.
func Clone(list []Block) []Block {
	if list == nil {
		return nil
	}
	out := make([]Block, len(list))
	for i := range list {
		out[i] = cloneBlock(list[i])
	}
	return out
}

func cloneBlock(b Block) Block {
	c := Block{
		ID:       b.ID,
		Type:     b.Type,
		ParentID: b.ParentID,
		Children: Clone(b.Children),
	}
	if b.Properties != nil {
		c.Properties = cloneValue(b.Properties).(map[string]interface{})
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// Walk visits every block depth first in document order. Returning false from
// fn stops the walk.
func Walk(list []Block, fn func(b *Block, parentID string, depth int) bool) {
	walk(list, "", 0, fn)
}

func walk(list []Block, parentID string, depth int, fn func(*Block, string, int) bool) bool {
	for i := range list {
		if !fn(&list[i], parentID, depth) {
			return false
		}
		if !walk(list[i].Children, list[i].ID, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns a pointer to the block with id, searching the whole tree.
func Find(list []Block, id string) (*Block, bool) {
	var found *Block
	Walk(list, func(b *Block, _ string, _ int) bool {
		if b.ID == id {
			found = b
			return false
		}
		return true
	})
	return found, found != nil
}

// IDs returns every block id of the tree with its occurrence count.
func IDs(list []Block) map[string]int {
	ids := make(map[string]int)
	Walk(list, func(b *Block, _ string, _ int) bool {
		ids[b.ID]++
		return true
	})
	return ids
}

// Validate checks every block has a non-empty id and a known type, the tree
// is within MaxDepth, and ids are unique across the tree.
func Validate(list []Block) error {
	seen := make(map[string]struct{})
	var err error
	Walk(list, func(b *Block, _ string, depth int) bool {
		if err = validateNode(b, depth); err != nil {
			return false
		}
		if _, dup := seen[b.ID]; dup {
			err = &DuplicateIDError{ID: b.ID}
			return false
		}
		seen[b.ID] = struct{}{}
		return true
	})
	return err
}

func validateNode(b *Block, depth int) error {
	if b.ID == "" {
		return &InvalidError{Reason: "block id must not be empty"}
	}
	if !b.Type.Valid() {
		return &InvalidError{BlockID: b.ID, Reason: fmt.Sprintf("unknown block type %q", b.Type)}
	}
	if depth >= MaxDepth {
		return &InvalidError{BlockID: b.ID, Reason: fmt.Sprintf("nesting deeper than %d", MaxDepth)}
	}
	return nil
}

// checkCollisions validates sub on its own and then against the ids already
// present in existing.
func checkCollisions(existing map[string]int, sub []Block) error {
	if err := Validate(sub); err != nil {
		return err
	}
	var err error
	Walk(sub, func(b *Block, _ string, _ int) bool {
		if existing[b.ID] > 0 {
			err = &DuplicateIDError{ID: b.ID}
			return false
		}
		return true
	})
	return err
}

// Normalize rewrites every ParentID hint from the block's actual position.
func Normalize(list []Block) {
	Walk(list, func(b *Block, parentID string, _ int) bool {
		b.ParentID = parentID
		return true
	})
}

// Insert places b under parentID (empty for the root list) at index. An index
// outside the child list appends. The input list is not modified.
func Insert(list []Block, parentID string, index int, b Block) ([]Block, error) {
	out := Clone(list)
	if err := checkCollisions(IDs(out), []Block{b}); err != nil {
		return nil, err
	}
	b = cloneBlock(b)
	if parentID == "" {
		out = insertAt(out, index, b)
	} else {
		parent, ok := Find(out, parentID)
		if !ok {
			return nil, fmt.Errorf("parent %q: %w", parentID, ErrNotFound)
		}
		parent.Children = insertAt(parent.Children, index, b)
	}
	Normalize(out)
	return out, nil
}

func insertAt(list []Block, index int, b Block) []Block {
	if index < 0 || index >= len(list) {
		return append(list, b)
	}
	list = append(list, Block{})
	copy(list[index+1:], list[index:])
	list[index] = b
	return list
}

// Replace updates the block with id in place, keeping its id and position.
// An empty Type keeps the current type, nil Properties keep the current
// properties and nil Children keep the current subtree; an empty non-nil
// Children clears it. The input list is not modified.
func Replace(list []Block, id string, replacement Block) ([]Block, error) {
	out := Clone(list)
	target, ok := Find(out, id)
	if !ok {
		return nil, fmt.Errorf("block %q: %w", id, ErrNotFound)
	}
	replacement.ID = id

	if replacement.Children != nil {
		// ids inside the replaced subtree may be reused by the replacement.
		existing := IDs(out)
		for old := range IDs([]Block{*target}) {
			delete(existing, old)
		}
		if err := checkCollisions(existing, []Block{replacement}); err != nil {
			return nil, err
		}
	}

	r := cloneBlock(replacement)
	if r.Type != "" {
		target.Type = r.Type
	}
	if r.Properties != nil {
		target.Properties = r.Properties
	}
	if r.Children != nil {
		target.Children = r.Children
	}
	Normalize(out)
	return out, nil
}

// Remove deletes the block with id and its whole subtree, returning the new
// list and the removed block. The input list is not modified.
func Remove(list []Block, id string) ([]Block, Block, error) {
	out := Clone(list)
	out, removed, ok := remove(out, id)
	if !ok {
		return nil, Block{}, fmt.Errorf("block %q: %w", id, ErrNotFound)
	}
	return out, removed, nil
}

func remove(list []Block, id string) ([]Block, Block, bool) {
	for i := range list {
		if list[i].ID == id {
			removed := list[i]
			return append(list[:i:i], list[i+1:]...), removed, true
		}
		children, removed, ok := remove(list[i].Children, id)
		if ok {
			list[i].Children = children
			return list, removed, true
		}
	}
	return list, Block{}, false
}

// Move detaches the block with id and re-inserts it under newParentID at
// index. Moving a block beneath itself is invalid.
func Move(list []Block, id, newParentID string, index int) ([]Block, error) {
	target, ok := Find(list, id)
	if !ok {
		return nil, fmt.Errorf("block %q: %w", id, ErrNotFound)
	}
	if newParentID != "" {
		if _, inside := Find([]Block{*target}, newParentID); inside {
			return nil, &InvalidError{BlockID: id, Reason: "cannot move a block beneath itself"}
		}
		if _, ok := Find(list, newParentID); !ok {
			return nil, fmt.Errorf("parent %q: %w", newParentID, ErrNotFound)
		}
	}
	out, removed, err := Remove(list, id)
	if err != nil {
		return nil, err
	}
	out, err = Insert(out, newParentID, index, removed)
	if err != nil {
		return nil, err
	}
	Normalize(out)
	return out, nil
}

// Equal reports whether two trees have the same shape and content. ParentID
// hints are ignored.
func Equal(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !sameNode(&a[i], &b[i]) || !Equal(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}

// IsReorder reports whether next holds exactly the blocks of prev with
// unchanged type and properties, arranged differently.
func IsReorder(prev, next []Block) bool {
	if Equal(prev, next) {
		return false
	}
	before := index(prev)
	after := index(next)
	if len(before) != len(after) {
		return false
	}
	for id, b := range before {
		a, ok := after[id]
		if !ok || !sameNode(b, a) {
			return false
		}
	}
	return true
}

func index(list []Block) map[string]*Block {
	m := make(map[string]*Block)
	Walk(list, func(b *Block, _ string, _ int) bool {
		m[b.ID] = b
		return true
	})
	return m
}

func sameNode(a, b *Block) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Properties) == 0 && len(b.Properties) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Properties, b.Properties)
}
