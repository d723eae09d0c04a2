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

package transaction

import (
	"fmt"
)

// Operation describes one data call for routing, logging and metrics.
type Operation struct {
	Model string
	Name  string
	Args  []interface{}
}

// NewOperation builds an Operation for model, e.g.
// NewOperation("users", "create", user).
func NewOperation(model, name string, args ...interface{}) Operation {
	return Operation{Model: model, Name: name, Args: args}
}

func (o Operation) String() string {
	if o.Model == "" {
		return o.Name
	}
	return fmt.Sprintf("%s.%s", o.Model, o.Name)
}
