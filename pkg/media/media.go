package media

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the two media shapes a live session accepts.
type Kind int

const (
	// KindFrame is a single still image
	KindFrame Kind = iota
	// KindClip is a short video clip
	KindClip
)

// ErrInvalidKind signals a media value handed to a component that cannot
// process its kind. This is a contract violation, never retried.
var ErrInvalidKind = errors.New("media: invalid media kind")

// MaxUploadSize caps a single uploaded frame or clip.
const MaxUploadSize = 50 * 1024 * 1024 // 50MB

// File is one unit of uploaded media held in memory.
type File struct {
	Name        string
	ContentType string
	Content     []byte
	Kind        Kind
}

// String returns the kind label used in logs and metrics
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindClip:
		return "clip"
	default:
		return "unknown"
	}
}

// StoragePrefix returns the filename prefix used when persisting this kind
func (k Kind) StoragePrefix() string {
	if k == KindClip {
		return "session_clip"
	}
	return "session_frame"
}

// NewFrame builds a frame from an uploaded image
func NewFrame(name, contentType string, content []byte) (File, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return File{}, fmt.Errorf("%w: content type %q is not an image", ErrInvalidKind, contentType)
	}
	return File{Name: name, ContentType: contentType, Content: content, Kind: KindFrame}, nil
}

// NewClip builds a clip from an uploaded video
func NewClip(name, contentType string, content []byte) (File, error) {
	if !strings.HasPrefix(contentType, "video/") {
		return File{}, fmt.Errorf("%w: content type %q is not a video", ErrInvalidKind, contentType)
	}
	return File{Name: name, ContentType: contentType, Content: content, Kind: KindClip}, nil
}
