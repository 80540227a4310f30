// Copyright (c) 2026 Alan Beebe [www.alanbeebe.com]
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Created: October 16, 2026

package signals

import (
	"context"
	"sync"
)

// Memory is an in-process Store. State is lost on restart.
type Memory struct {
	mux     sync.RWMutex
	signals map[string]Signals
}

// NewMemory returns an empty Memory store
func NewMemory() *Memory {
	return &Memory{signals: map[string]Signals{}}
}

func (m *Memory) Load(ctx context.Context, blockID string) (Signals, error) {
	if err := ValidateBlockID(blockID); err != nil {
		return Signals{}, err
	}
	m.mux.RLock()
	defer m.mux.RUnlock()
	s, ok := m.signals[blockID]
	if !ok {
		return Unprovisioned(), nil
	}
	return s.normalize(), nil
}

func (m *Memory) Save(ctx context.Context, blockID string, s Signals) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	m.signals[blockID] = s
	return nil
}

func (m *Memory) Clear(ctx context.Context, blockID string) error {
	if err := ValidateBlockID(blockID); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.signals, blockID)
	return nil
}
