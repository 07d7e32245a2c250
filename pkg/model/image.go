package model

// Image is a read-through copy of a backend image record.
type Image struct {
	ID            int64  `json:"id"`
	ImageURL      string `json:"image_url"`
	Description   string `json:"description"`
	IsAIGenerated bool   `json:"is_ai_generated"`
	LikesCount    int    `json:"likes_count"`
	UserHasLiked  bool   `json:"user_has_liked,omitempty"`
	Username      string `json:"username,omitempty"`
}

// ApplyLike applies an optimistic like/unlike to the local counters.
// The next authoritative fetch replaces these values.
func (img *Image) ApplyLike(liked bool) {
	if liked == img.UserHasLiked {
		return
	}
	img.UserHasLiked = liked
	if liked {
		img.LikesCount++
	} else if img.LikesCount > 0 {
		img.LikesCount--
	}
}

// NewImage is the body of POST /images/.
type NewImage struct {
	ImageURL      string `json:"image_url"`
	Description   string `json:"description"`
	IsAIGenerated bool   `json:"is_ai_generated"`
}

// Generation styles offered by the backend.
const (
	StyleVivid     = "vivid"
	StyleRealistic = "realistic"
	StyleAnime     = "anime"
	StylePainting  = "painting"
	StyleSketch    = "sketch"
)

// Styles lists the supported generation styles, default first.
var Styles = []string{StyleVivid, StyleRealistic, StyleAnime, StylePainting, StyleSketch}

// IsValidStyle reports whether s is a supported generation style.
func IsValidStyle(s string) bool {
	for _, v := range Styles {
		if v == s {
			return true
		}
	}
	return false
}

// GenerateRequest is the body of POST /generate-image/.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

// GenerateResult is the response of POST /generate-image/.
type GenerateResult struct {
	URL string `json:"url"`
}
