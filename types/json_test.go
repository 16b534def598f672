/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonObject(t *testing.T) {
	v, err := JsonObject{"a": 1.0, "b": "x"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"x"}`, v.(string))

	nilValue, err := JsonObject(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)

	var o JsonObject
	require.NoError(t, o.Scan([]byte(`{"k":[1,2]}`)))
	assert.Equal(t, JsonObject{"k": []interface{}{1.0, 2.0}}, o)

	require.NoError(t, o.Scan(nil))
	assert.Empty(t, o)

	assert.Error(t, o.Scan(42))
}

func TestJsonArray(t *testing.T) {
	v, err := JsonArray{"a", 2.0}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a",2]`, v)

	var a JsonArray
	require.NoError(t, a.Scan(`[{"x":true}]`))
	assert.Equal(t, JsonArray{map[string]interface{}{"x": true}}, a)

	require.NoError(t, a.Scan(nil))
	assert.NotNil(t, a)
	assert.Empty(t, a)
}
