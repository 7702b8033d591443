package present

import (
	"net/url"
	"path"
	"strings"

	"github.com/and161185/sociallink/internal/model"
)

var videoExt = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".m4v":  {},
	".webm": {},
}

// IsVideoURL reports whether the media URL ends in a recognized video
// extension. Query string and fragment are ignored, case is not significant.
func IsVideoURL(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	_, ok := videoExt[strings.ToLower(path.Ext(p))]
	return ok
}

// ClassifyMedia picks the post type for a publish intent.
func ClassifyMedia(mediaURL string) model.PostType {
	switch {
	case mediaURL == "":
		return model.PostText
	case IsVideoURL(mediaURL):
		return model.PostVideo
	default:
		return model.PostImage
	}
}
