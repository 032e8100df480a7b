package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SettingType tells how a stored value is decoded
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeInteger SettingType = "integer"
	SettingTypeFloat   SettingType = "float"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeJSON    SettingType = "json"
)

// Setting is a global key/value entry
type Setting struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Key         string         `json:"key" gorm:"size:191;uniqueIndex;not null"`
	Value       datatypes.JSON `json:"value"`
	Type        SettingType    `json:"type" gorm:"size:20;not null"`
	IsPublic    bool           `json:"is_public" gorm:"not null;index"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

func (s *Setting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TypedValue decodes the stored JSON according to the setting type
func (s *Setting) TypedValue() (interface{}, error) {
	if len(s.Value) == 0 {
		return nil, nil
	}

	switch s.Type {
	case SettingTypeString:
		var v string
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	case SettingTypeInteger:
		var n json.Number
		if err := json.Unmarshal(s.Value, &n); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return strconv.ParseInt(n.String(), 10, 64)
	case SettingTypeFloat:
		var v float64
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	case SettingTypeBoolean:
		var v bool
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	default:
		var v interface{}
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	}
}

// InferSettingType picks the storage type for a Go value
func InferSettingType(value interface{}) SettingType {
	switch value.(type) {
	case string:
		return SettingTypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return SettingTypeInteger
	case float32, float64:
		return SettingTypeFloat
	case bool:
		return SettingTypeBoolean
	default:
		return SettingTypeJSON
	}
}
