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

package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer-mongodb/types"
)

type audit struct {
	CreatedAt time.Time `bson:"createdAt"`
}

type article struct {
	ID       types.ID       `bson:"_id,omitempty"`
	Title    string         `bson:"title" hummer:"index,length=255"`
	Slug     string         `bson:"slug" hummer:"unique,required"`
	Views    int64          `bson:"views"`
	Score    float64        `bson:"score"`
	Public   bool           `bson:"public"`
	Tags     []string       `bson:"tags"`
	Meta     map[string]any `bson:"meta"`
	AuthorID types.ID       `bson:"authorId" hummer:"index"`
	Ignored  string         `bson:"-"`
	Audit    audit          `bson:",inline"`
	hidden   string
}

func TestFromStruct(t *testing.T) {
	m, err := FromStruct("Article", &article{})
	require.NoError(t, err)
	assert.Equal(t, ObjectID, m.IDType)
	assert.Equal(t, []Property{
		{Name: "title", Type: StringType, Index: true, Length: 255},
		{Name: "slug", Type: StringType, Unique: true, Required: true},
		{Name: "views", Type: IntegerType},
		{Name: "score", Type: NumberType},
		{Name: "public", Type: BooleanType},
		{Name: "tags", Type: ArrayType},
		{Name: "meta", Type: ObjectType},
		{Name: "authorId", Type: ObjectIDType, Index: true},
		{Name: "createdAt", Type: DateType},
	}, m.Properties)
	_ = article{}.hidden
}

func TestFromStructStringID(t *testing.T) {
	type code struct {
		ID    string `bson:"_id"`
		Label string
	}
	m, err := FromStruct("Code", code{})
	require.NoError(t, err)
	assert.Equal(t, StringID, m.IDType)
	require.Len(t, m.Properties, 1)
	assert.Equal(t, "label", m.Properties[0].Name)
}

func TestFromStructErrors(t *testing.T) {
	_, err := FromStruct("X", 3)
	assert.Error(t, err)

	type bad struct {
		A string `hummer:"indexed"`
	}
	_, err = FromStruct("Bad", bad{})
	assert.Error(t, err)

	type badLen struct {
		A string `hummer:"length=x"`
	}
	_, err = FromStruct("Bad", badLen{})
	assert.Error(t, err)
}
