package chat

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/longkey1/flowchat/internal/flowchat/flow"
)

// MaxFileSize is the largest attachment accepted (5 MB).
const MaxFileSize = 5 * 1024 * 1024

// Attachment is a file sent along with a chat turn.
type Attachment struct {
	Name     string
	MIMEType string
	DataURI  string
	Size     int64
}

// LoadAttachment reads a file from disk. Files over MaxFileSize are rejected
// before their content is read.
func LoadAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %s", ErrFileTooLarge, filepath.Base(path), formatSize(info.Size()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	mimeType = baseMediaType(mimeType)

	return &Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		DataURI:  flow.EncodeDataURI(mimeType, data),
		Size:     int64(len(data)),
	}, nil
}

// AttachmentFromDataURI builds an attachment from an uploaded data URI.
// An empty mimeType is taken from the URI.
func AttachmentFromDataURI(name, mimeType, dataURI string) (*Attachment, error) {
	uriType, data, err := flow.ParseDataURI(dataURI)
	if err != nil {
		return nil, &flow.ValidationError{Flow: "chat", Field: "file", Reason: err.Error()}
	}
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %s", ErrFileTooLarge, name, formatSize(int64(len(data))))
	}
	if mimeType == "" {
		mimeType = uriType
	}
	if name == "" {
		name = "upload"
	}
	return &Attachment{
		Name:     name,
		MIMEType: baseMediaType(mimeType),
		DataURI:  dataURI,
		Size:     int64(len(data)),
	}, nil
}

func baseMediaType(mimeType string) string {
	if media, _, err := mime.ParseMediaType(mimeType); err == nil {
		return media
	}
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

func formatSize(n int64) string {
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}
