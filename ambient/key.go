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

package ambient

import "context"

// Key is a typed slot in a context chain. Two keys never collide, even when
// they share a name and a value type.
type Key[T any] struct {
	name string
}

// NewKey returns a new slot. The name is only used for debugging.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

func (k *Key[T]) String() string { return "ambient." + k.name }

// With returns a child of ctx in which v is the current value. Everything
// derived from the child, including contexts handed to goroutines, sees v
// until a descendant establishes another value.
func (k *Key[T]) With(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

// Current returns the value visible from ctx.
func (k *Key[T]) Current(ctx context.Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(k).(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Run establishes v for the duration of fn and returns fn's error.
func (k *Key[T]) Run(ctx context.Context, v T, fn func(ctx context.Context) error) error {
	return fn(k.With(ctx, v))
}
