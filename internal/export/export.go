// Package export renders completed transcriptions into downloadable files.
package export

import (
	"fmt"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

// Format selects what gets exported.
type Format string

const (
	// FormatTranscript is the raw transcript as plain text.
	FormatTranscript Format = "transcript"
	// FormatSummary is the generated summary as markdown.
	FormatSummary Format = "summary"
)

var ErrUnknownFormat = fmt.Errorf("unknown export format")

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render builds the download for one completed transcription.
func Render(upload domain.MediaUpload, transcript domain.Transcript, format Format) (File, error) {
	base := upload.BaseName()
	switch format {
	case FormatTranscript:
		return File{
			Name:        base + "_transcription.txt",
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(transcript.Text),
		}, nil
	case FormatSummary:
		return File{
			Name:        base + "_resume.md",
			ContentType: "text/markdown; charset=utf-8",
			Data:        []byte(transcript.Summary),
		}, nil
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}
