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
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDKind tags which variant an ID holds.
type IDKind int

const (
	StringIDKind IDKind = iota
	NativeIDKind
)

var objectIDHex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

func (k IDKind) IsValid() bool { return k == StringIDKind || k == NativeIDKind }

func (k IDKind) Number() int {
	if !k.IsValid() {
		return IllegalValue
	}
	return int(k)
}

func (k IDKind) Name() string {
	switch k {
	case StringIDKind:
		return "string"
	case NativeIDKind:
		return "objectid"
	default:
		return IllegalName
	}
}

func (k IDKind) String() string { return k.Name() }

func (k IDKind) Desc() string {
	switch k {
	case StringIDKind:
		return "caller supplied string identifier"
	case NativeIDKind:
		return "12-byte document database identifier"
	default:
		return IllegalDesc
	}
}

// IsObjectIDHex reports whether s lexically matches the 24 character
// hexadecimal form of a native identifier.
func IsObjectIDHex(s string) bool {
	return len(s) == 24 && objectIDHex.MatchString(s)
}

// ID is a record identifier: either a plain string or a native ObjectID.
// The zero value is an empty string id and reports IsZero.
type ID struct {
	kind IDKind
	str  string
	oid  primitive.ObjectID
}

// NewID generates a fresh native identifier.
func NewID() ID { return NativeID(primitive.NewObjectID()) }

// NativeID wraps an ObjectID.
func NativeID(oid primitive.ObjectID) ID { return ID{kind: NativeIDKind, oid: oid} }

// StringID wraps s without inspecting its format.
func StringID(s string) ID { return ID{kind: StringIDKind, str: s} }

// ParseID converts s to a native id when it matches the ObjectID hex format
// and passes it through as a string id otherwise. Malformed input is never an
// error here.
func ParseID(s string) ID {
	if IsObjectIDHex(s) {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return NativeID(oid)
		}
	}
	return StringID(s)
}

// IDFrom converts the common identifier representations into an ID. Strings
// go through ParseID; integers become decimal string ids.
func IDFrom(v any) (ID, error) {
	switch x := v.(type) {
	case nil:
		return ID{}, nil
	case ID:
		return x, nil
	case *ID:
		if x == nil {
			return ID{}, nil
		}
		return *x, nil
	case primitive.ObjectID:
		return NativeID(x), nil
	case *primitive.ObjectID:
		if x == nil {
			return ID{}, nil
		}
		return NativeID(*x), nil
	case string:
		return ParseID(x), nil
	case []byte:
		return ParseID(string(x)), nil
	case int:
		return StringID(strconv.Itoa(x)), nil
	case int32:
		return StringID(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return StringID(strconv.FormatInt(x, 10)), nil
	case uint64:
		return StringID(strconv.FormatUint(x, 10)), nil
	case fmt.Stringer:
		return ParseID(x.String()), nil
	default:
		return ID{}, fmt.Errorf("unsupported id type %T", v)
	}
}

func (id ID) Kind() IDKind { return id.kind }

func (id ID) IsNative() bool { return id.kind == NativeIDKind }

// IsZero reports an empty string id or a nil ObjectID.
func (id ID) IsZero() bool {
	if id.kind == NativeIDKind {
		return id.oid.IsZero()
	}
	return id.str == ""
}

// ObjectID returns the native value and true for native ids.
func (id ID) ObjectID() (primitive.ObjectID, bool) {
	if id.kind == NativeIDKind {
		return id.oid, true
	}
	return primitive.NilObjectID, false
}

// String returns the hex form for native ids and the raw string otherwise.
func (id ID) String() string {
	if id.kind == NativeIDKind {
		return id.oid.Hex()
	}
	return id.str
}

// StorageValue is the value handed to the document driver.
func (id ID) StorageValue() any {
	if id.kind == NativeIDKind {
		return id.oid
	}
	return id.str
}

// AsString returns a string id carrying the textual form of id.
func (id ID) AsString() ID { return StringID(id.String()) }

// Equal compares the textual forms, so a native id equals the string id of
// its hex.
func (id ID) Equal(other ID) bool { return id.String() == other.String() }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ParseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = StringID(n.String())
	return nil
}

func (id ID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if id.IsZero() {
		return bsontype.Null, nil, nil
	}
	return bson.MarshalValue(id.StorageValue())
}

func (id *ID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.ObjectID:
		*id = NativeID(raw.ObjectID())
	case bsontype.String:
		*id = StringID(raw.StringValue())
	case bsontype.Int32:
		*id = StringID(strconv.FormatInt(int64(raw.Int32()), 10))
	case bsontype.Int64:
		*id = StringID(strconv.FormatInt(raw.Int64(), 10))
	case bsontype.Null, bsontype.Undefined:
		*id = ID{}
	default:
		return fmt.Errorf("cannot decode bson %s into an id", t)
	}
	return nil
}

// Value implements driver.Valuer; SQL stores ids as text.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return id.String(), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = ID{}
	case string:
		*id = ParseID(v)
	case []byte:
		*id = ParseID(string(v))
	case int64:
		*id = StringID(strconv.FormatInt(v, 10))
	default:
		return fmt.Errorf("cannot scan %T into an id", src)
	}
	return nil
}
