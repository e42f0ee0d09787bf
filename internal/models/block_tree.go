package models

import (
	"database/sql/driver"

	"github.com/localnerve/contentdb/internal/blocks"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// BlockTree is the persisted form of a root block list, stored as a JSON column.
type BlockTree struct {
	datatypes.JSON
}

// NewBlockTree encodes list for storage.
func NewBlockTree(list []blocks.Block) (BlockTree, error) {
	data, err := blocks.Marshal(list)
	if err != nil {
		return BlockTree{}, err
	}
	return BlockTree{JSON: datatypes.JSON(data)}, nil
}

// Blocks decodes the stored tree.
func (t BlockTree) Blocks() ([]blocks.Block, error) {
	return blocks.Unmarshal(t.JSON)
}

// Value stores an empty tree as an empty array so the column can stay NOT NULL.
func (t BlockTree) Value() (driver.Value, error) {
	if len(t.JSON) == 0 {
		return "[]", nil
	}
	return t.JSON.Value()
}

// Scan promotes the embedded JSON's Scan method
func (t *BlockTree) Scan(value interface{}) error {
	return t.JSON.Scan(value)
}

// GormDBDataType picks the column type per dialect. MSSQL has no json type.
func (BlockTree) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "JSON"
	}
	return "TEXT"
}
