package gqlmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giuseppesec/gqlmap/qerrors"
)

func TestResponseDataHelpers(t *testing.T) {
	response := Response{}
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"user":{"id":"1"},"missing":null}}`), &response))

	assert.True(t, response.HasData())
	assert.False(t, response.DataIsNull())

	raw, ok := response.DataField("user")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"1"}`, string(raw))

	// Present-but-null is still present.
	raw, ok = response.DataField("missing")
	require.True(t, ok)
	assert.Equal(t, "null", string(raw))

	_, ok = response.DataField("absent")
	assert.False(t, ok)
}

func TestResponseNullData(t *testing.T) {
	response := Response{}
	require.NoError(t, json.Unmarshal([]byte(`{"data":null}`), &response))

	assert.True(t, response.HasData())
	assert.True(t, response.DataIsNull())
	_, ok := response.DataField("anything")
	assert.False(t, ok)
}

func TestResponseNoData(t *testing.T) {
	response := Response{}
	require.NoError(t, json.Unmarshal([]byte(`{"errors":[{"message":"nope","locations":[{"line":1,"column":3}]}]}`), &response))

	assert.False(t, response.HasData())
	require.Len(t, response.Errors, 1)
	assert.Equal(t, []string{"nope"}, response.Errors.Messages())
	assert.Equal(t, 1, response.Errors[0].Locations[0].Line)
	require.Error(t, response.Error())
}

func TestResponseAddError(t *testing.T) {
	response := NewResponse()
	assert.NoError(t, response.Error())

	response.AddError(qerrors.New("first"))
	response.AddError(qerrors.New("second"))
	assert.Equal(t, []string{"first", "second"}, response.Errors.Messages())
	assert.Error(t, response.Error())
}
