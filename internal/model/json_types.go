package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// FollowUps is persisted as a JSON array of {text, target} objects.
type FollowUps []FollowUp

func (f FollowUps) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	b, err := sonic.Marshal([]FollowUp(f))
	if err != nil {
		return nil, fmt.Errorf("marshal follow ups failed: %w", err)
	}
	return string(b), nil
}

func (f *FollowUps) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*f = nil
		return nil
	}
	var out []FollowUp
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal follow ups failed: %w", err)
	}
	*f = out
	return nil
}

func (FollowUps) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}

// StringList is persisted as a JSON array of strings.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := sonic.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("marshal string list failed: %w", err)
	}
	return string(b), nil
}

func (s *StringList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	var out []string
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal string list failed: %w", err)
	}
	*s = out
	return nil
}

func (StringList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}

func jsonColumnType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}
