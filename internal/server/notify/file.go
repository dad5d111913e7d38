package notify

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// FileDispatcher appends messages as JSON lines, e.g. for a mail relay that tails the file.
type FileDispatcher struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileDispatcher opens path for appending and returns a FileDispatcher writing to it.
func NewFileDispatcher(path string) (*FileDispatcher, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileDispatcher{f: f, enc: json.NewEncoder(f)}, nil
}

func (d *FileDispatcher) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Encode(msg)
}

func (d *FileDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
