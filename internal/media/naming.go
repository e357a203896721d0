// Package media stores media downloaded from LINE so Discord can fetch it
// from a public URL, and expires it again after the retention period.
package media

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"time"

	"line2discord/internal/domain"
)

// Public URL prefixes. Images are served from /images, everything else
// from /files.
const (
	ImagesDir = "images"
	FilesDir  = "files"
)

var safeExt = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// NewName returns "<prefix>_<unixMillis>_<rand><ext>" for a stored object.
func NewName(kind domain.MessageKind, originalName string, now time.Time) string {
	prefix, ext := "file", ".bin"
	switch kind {
	case domain.KindImage:
		prefix, ext = "img", ".jpg"
	case domain.KindAudio:
		prefix, ext = "audio", ".m4a"
	case domain.KindVideo:
		prefix, ext = "video", ".mp4"
	default:
		if e := filepath.Ext(originalName); safeExt.MatchString(e) {
			ext = e
		}
	}
	return fmt.Sprintf("%s_%d_%d%s", prefix, now.UnixMilli(), rand.IntN(1_000_000), ext)
}

// SubDir is the directory (and URL segment) an object of this kind lives in.
func SubDir(kind domain.MessageKind) string {
	if kind == domain.KindImage {
		return ImagesDir
	}
	return FilesDir
}

// RelativePath is the URL path under which a stored object is served.
func RelativePath(kind domain.MessageKind, name string) string {
	return "/" + SubDir(kind) + "/" + name
}
