package entities

import (
	"strings"
	"time"
)

// MimeTypeWebm is what the capture device produces by default
const MimeTypeWebm = "audio/webm"

// AudioObject is the finalized, MIME-tagged result of one recording
type AudioObject struct {
	Data     []byte        `json:"-"`
	MimeType string        `json:"mime_type"`
	Duration time.Duration `json:"duration"`
}

// Size returns the number of audio bytes
func (a AudioObject) Size() int {
	return len(a.Data)
}

// IsEmpty reports whether no audio was produced
func (a AudioObject) IsEmpty() bool {
	return len(a.Data) == 0
}

// Filename derives an upload filename from the MIME type
func (a AudioObject) Filename() string {
	return "recording." + ExtensionForMimeType(a.MimeType)
}

// ExtensionForMimeType maps an audio MIME type to a file extension,
// ignoring codec parameters such as ";codecs=opus".
func ExtensionForMimeType(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "audio/ogg":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	default:
		return "webm"
	}
}
