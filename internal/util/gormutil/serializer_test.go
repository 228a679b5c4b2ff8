package gormutil

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawJSONSerializerValue(t *testing.T) {
	var s RawJSONSerializer
	ctx := context.Background()

	v, err := s.Value(ctx, nil, reflect.Value{}, json.RawMessage(`{"a":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, v)

	v, err = s.Value(ctx, nil, reflect.Value{}, json.RawMessage(nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = s.Value(ctx, nil, reflect.Value{}, json.RawMessage(`{"a":`))
	assert.Error(t, err)

	_, err = s.Value(ctx, nil, reflect.Value{}, "text")
	assert.Error(t, err)
}
