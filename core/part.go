package core

import "strings"

// Part represents a polymorphic segment of multimodal turn content. Concrete
// part types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// FilePart is an inlined file attachment segment.
type FilePart struct {
	File FilePartFile
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FilePartFile holds an inlined file as a data URI
// (e.g. "data:image/jpeg;base64,<payload>").
type FilePartFile struct {
	FileData string `json:"file_data"`
}

// MimeType returns the media type encoded in the data URI ("" if malformed).
func (f FilePartFile) MimeType() string {
	rest, ok := strings.CutPrefix(f.FileData, "data:")
	if !ok {
		return ""
	}
	mime, _, ok := strings.Cut(rest, ";")
	if !ok {
		return ""
	}
	return mime
}

// Base64 returns the base64 payload of the data URI ("" if malformed).
func (f FilePartFile) Base64() string {
	_, payload, ok := strings.Cut(f.FileData, ";base64,")
	if !ok {
		return ""
	}
	return payload
}

// AttachmentKind classifies a user supplied attachment.
type AttachmentKind string

const (
	// AttachmentImage is a still image (encoded as JPEG).
	AttachmentImage AttachmentKind = "image"
	// AttachmentVideo is a video clip (encoded as MP4).
	AttachmentVideo AttachmentKind = "video"
)

// Attachment is base64 media sent alongside a user message.
type Attachment struct {
	Data string         // Base64 encoded payload (no data URI prefix)
	Kind AttachmentKind // Unknown kinds are treated as images
}

// DataURI renders the attachment as a data URI. Kinds other than video fall
// back to the image encoding.
func (a Attachment) DataURI() string {
	if a.Kind == AttachmentVideo {
		return "data:video/mp4;base64," + a.Data
	}
	return "data:image/jpeg;base64," + a.Data
}

// Part converts the attachment into a FilePart.
func (a Attachment) Part() FilePart {
	return FilePart{File: FilePartFile{FileData: a.DataURI()}}
}
