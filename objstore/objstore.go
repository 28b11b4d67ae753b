// Package objstore defines binary asset storage for generated images and
// videos. Backends live in subpackages; the memory implementation backs
// tests and demo mode.
package objstore

import (
	"context"
	"fmt"
	"sync"
)

// ObjectRef describes where an uploaded asset lives. Stored is false when
// the upload was skipped and the reference is a placeholder.
type ObjectRef struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType,omitempty"`
	Stored   bool   `json:"stored"`
}

type Uploader interface {
	// Upload writes the payload under name and returns its reference.
	Upload(ctx context.Context, name, mimeType string, data []byte) (ObjectRef, error)
}

// Memory is an in-process Uploader for tests and demo mode.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(_ context.Context, name, mimeType string, data []byte) (ObjectRef, error) {
	if name == "" {
		return ObjectRef{}, fmt.Errorf("object name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[name] = buf

	return ObjectRef{
		URL:      "mem://" + name,
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		Stored:   true,
	}, nil
}

// Get returns a stored payload. Test helper.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}
