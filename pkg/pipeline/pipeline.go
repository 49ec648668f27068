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

// Package pipeline holds the reference to the collection pipeline which owns queued items. A pipeline is
// rebuilt on every configuration reload, each rebuild gets a new generation number.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Pipeline identifies one generation of a collection pipeline.
type Pipeline struct {
	Name       string
	Generation int64
	CreatedAt  time.Time
}

// New returns a pipeline with the given name and generation.
func New(name string, generation int64) *Pipeline {
	return &Pipeline{
		Name:       name,
		Generation: generation,
		CreatedAt:  time.Now(),
	}
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s#%d", p.Name, p.Generation)
}

// Holder keeps the current pipeline generation. It is safe for concurrent use.
type Holder struct {
	current atomic.Pointer[Pipeline]
}

// NewHolder returns a Holder whose current pipeline is generation 1 of name.
func NewHolder(name string) *Holder {
	h := &Holder{}
	h.current.Store(New(name, 1))
	return h
}

// Current returns the latest pipeline generation.
func (h *Holder) Current() *Pipeline {
	return h.current.Load()
}

// Reload swaps in the next generation and returns it. An empty name keeps the current one.
func (h *Holder) Reload(name string) *Pipeline {
	for {
		old := h.current.Load()
		if name == "" {
			name = old.Name
		}
		next := New(name, old.Generation+1)
		if h.current.CompareAndSwap(old, next) {
			return next
		}
	}
}
