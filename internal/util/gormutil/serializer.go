package gormutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"gorm.io/gorm/schema"
)

// RawJSONSerializer stores json.RawMessage fields as text. Empty messages are
// stored as NULL, and malformed JSON is rejected in both directions.
type RawJSONSerializer struct{}

func (RawJSONSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue any) error {
	if field.FieldType != reflect.TypeFor[json.RawMessage]() {
		return fmt.Errorf("bad field value type: %v", field.FieldType)
	}
	var data []byte
	switch v := dbValue.(type) {
	case nil:
	case []byte:
		data = bytes.Clone(v)
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("bad db value type: %T", dbValue)
	}
	var raw json.RawMessage
	if len(data) != 0 {
		if !sonic.Valid(data) {
			return fmt.Errorf("malformed json in db")
		}
		raw = data
	}
	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(raw))
	return nil
}

func (RawJSONSerializer) Value(_ context.Context, _ *schema.Field, _ reflect.Value, fieldValue any) (any, error) {
	v, ok := fieldValue.(json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("bad value type %T", fieldValue)
	}
	if len(v) == 0 {
		return nil, nil
	}
	if !sonic.Valid(v) {
		return nil, fmt.Errorf("malformed json")
	}
	return string(v), nil
}

func init() {
	schema.RegisterSerializer("rawjson", RawJSONSerializer{})
}
