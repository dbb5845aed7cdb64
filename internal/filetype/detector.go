package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const (
	MIMEPDF   = "application/pdf"
	MIMEPNG   = "image/png"
	MIMEDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPptx  = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MIMEOctet = "application/octet-stream"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	IsImage     bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual type of data using magic bytes.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	// mimetype appends parameters for some types (e.g. text/plain; charset=utf-8)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}

	// Office Open XML packages are zip files; the content types part decides the flavor.
	if mimeType == "application/zip" {
		switch {
		case mtype.Is(MIMEDocx):
			mimeType = MIMEDocx
		case mtype.Is(MIMEPptx):
			mimeType = MIMEPptx
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Int("size", len(data)).Msg("detected file type")
	return info
}

func (d *Detector) classify(info *FileTypeInfo) {
	switch {
	case info.MIMEType == MIMEPDF:
		info.IsPDF = true
		info.Description = "PDF document"
	case strings.HasPrefix(info.MIMEType, "image/"):
		info.IsImage = true
		info.Description = "Image file"
	case info.MIMEType == MIMEDocx:
		info.Description = "Microsoft Word document"
	case info.MIMEType == MIMEPptx:
		info.Description = "Microsoft PowerPoint presentation"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// RequirePDF returns an error unless data starts like a PDF.
func (d *Detector) RequirePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty input")
	}
	info := d.Detect(data)
	if !info.IsPDF {
		return fmt.Errorf("not a PDF document (detected %s)", info.MIMEType)
	}
	return nil
}

// ImageMIME returns the MIME type of an image payload, falling back to
// image/png when the bytes are not recognized as an image.
func (d *Detector) ImageMIME(data []byte) string {
	info := d.Detect(data)
	if info.IsImage {
		return info.MIMEType
	}
	return MIMEPNG
}
