package domain

import (
	"errors"
	"strings"
)

// MediaUpload describes the audio or video file a transcription was requested
// for. It is the immutable input of a transcription job.
type MediaUpload struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	MIMEType  string `json:"mime_type"`
}

// Transcript is the result of a completed transcription job: the full text
// plus the generated markdown summary.
type Transcript struct {
	Text            string  `json:"text"`
	Summary         string  `json:"summary"`
	DurationSeconds int     `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	Confidence      float64 `json:"confidence"`
}

var ErrUnsupportedMedia = errors.New("unsupported media type")

// IsMedia reports whether the upload looks like audio or video content.
func (m MediaUpload) IsMedia() bool {
	return strings.HasPrefix(m.MIMEType, "audio/") || strings.HasPrefix(m.MIMEType, "video/")
}

// BaseName returns the filename without its extension, used when naming
// exported transcript and summary files.
func (m MediaUpload) BaseName() string {
	name := m.Filename
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
