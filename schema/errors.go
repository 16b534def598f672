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
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned when a model name is not registered.
var ErrUnknownModel = errors.New("unknown model")

// InvalidIDError reports an identifier rejected by a strict-id model.
type InvalidIDError struct {
	Model string
	Value string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%s: invalid id %q, expected a 24 character hex object id", e.Model, e.Value)
}

// ValidationError collects the problems found in a record or descriptor.
type ValidationError struct {
	Model    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed: %s", e.Model, strings.Join(e.Problems, "; "))
}
