package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
)

// FileClient sends the contents of a file over a stream client.
type FileClient struct {
	fs     afero.Fs
	stream Client
}

// NewFileClient creates a file client that reads from fs and delegates the
// transfer to stream. A nil fs means the OS filesystem.
func NewFileClient(fs afero.Fs, stream Client) *FileClient {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileClient{fs: fs, stream: stream}
}

// Do reads req.Path into memory and sends it as the payload. If the file
// cannot be read no connection is attempted.
func (c *FileClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()

	data, err := afero.ReadFile(c.fs, req.Path)
	if err != nil {
		return &Response{
			Error:    fmt.Errorf("read file %s: %w", req.Path, err),
			Duration: time.Since(start),
		}
	}

	transfer := *req
	transfer.Body = data
	return c.stream.Do(ctx, &transfer)
}

// Close releases resources. The stream client is owned by the caller.
func (c *FileClient) Close() error {
	return nil
}
