/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"fmt"
)

// InvalidArgsErr is returned when a queue cannot be built from the given capacity and watermarks.
type InvalidArgsErr struct {
	Key      Key
	Capacity int
	Low      int
	High     int
}

func (e InvalidArgsErr) Error() string {
	return fmt.Sprintf("(%s) invalid queue arguments capacity:%d low:%d high:%d, want 0 <= low < high <= capacity", e.Key, e.Capacity, e.Low, e.High)
}

// QueueNotFoundErr is returned by the manager for unknown keys.
type QueueNotFoundErr struct {
	Key Key
}

func (e QueueNotFoundErr) Error() string {
	return fmt.Sprintf("(%s) sender queue not found", e.Key)
}
