// Package filter selects images for display: a description search, the
// AI/non-AI split of the gallery, and JavaScript predicates evaluated with goja.
package filter

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/me/visium/pkg/model"
)

// Kind restricts images by how they were made.
type Kind string

const (
	KindAll   Kind = ""
	KindAI    Kind = "ai"
	KindNonAI Kind = "non-ai"
)

// Criteria combines every supported filter. Zero value matches everything.
type Criteria struct {
	Query string
	Kind  Kind
	Expr  string
}

// Predicate is a compiled JavaScript expression over an image bound to `img`,
// e.g. `img.likes_count > 3 && !img.is_ai_generated`.
type Predicate struct {
	source  string
	program *goja.Program
}

// Compile parses expr once so it can be evaluated against many images.
func Compile(expr string) (*Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty filter expression")
	}
	prg, err := goja.Compile("filter", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, err)
	}
	return &Predicate{source: expr, program: prg}, nil
}

// String returns the expression source.
func (p *Predicate) String() string {
	return p.source
}

// Match evaluates the predicate against a single image.
func (p *Predicate) Match(img model.Image) (bool, error) {
	return p.match(goja.New(), img)
}

func (p *Predicate) match(vm *goja.Runtime, img model.Image) (bool, error) {
	if err := vm.Set("img", imageValue(img)); err != nil {
		return false, fmt.Errorf("set img: %w", err)
	}
	val, err := vm.RunProgram(p.program)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on image %d: %w", p.source, img.ID, err)
	}
	return val.ToBoolean(), nil
}

// Select returns the images the predicate accepts, in order.
func (p *Predicate) Select(images []model.Image) ([]model.Image, error) {
	vm := goja.New()
	out := make([]model.Image, 0, len(images))
	for _, img := range images {
		ok, err := p.match(vm, img)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, img)
		}
	}
	return out, nil
}

// imageValue exposes an image to JavaScript under its wire field names.
func imageValue(img model.Image) map[string]any {
	return map[string]any{
		"id":              img.ID,
		"image_url":       img.ImageURL,
		"description":     img.Description,
		"is_ai_generated": img.IsAIGenerated,
		"likes_count":     img.LikesCount,
		"user_has_liked":  img.UserHasLiked,
		"username":        img.Username,
	}
}

// MatchesQuery reports whether the description contains q, ignoring case.
// An empty query matches every image.
func MatchesQuery(img model.Image, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(img.Description), strings.ToLower(q))
}

// SplitAI partitions images into AI-generated and the rest, keeping order.
func SplitAI(images []model.Image) (ai, other []model.Image) {
	ai = make([]model.Image, 0)
	other = make([]model.Image, 0)
	for _, img := range images {
		if img.IsAIGenerated {
			ai = append(ai, img)
		} else {
			other = append(other, img)
		}
	}
	return ai, other
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindAll, KindAI, KindNonAI:
		return k, nil
	default:
		return "", fmt.Errorf("unknown image kind %q (valid: ai, non-ai)", s)
	}
}

// Apply narrows images by every criterion that is set.
func Apply(images []model.Image, c Criteria) ([]model.Image, error) {
	out := make([]model.Image, 0, len(images))
	for _, img := range images {
		if !MatchesQuery(img, c.Query) {
			continue
		}
		switch c.Kind {
		case KindAI:
			if !img.IsAIGenerated {
				continue
			}
		case KindNonAI:
			if img.IsAIGenerated {
				continue
			}
		}
		out = append(out, img)
	}

	if c.Expr == "" {
		return out, nil
	}
	pred, err := Compile(c.Expr)
	if err != nil {
		return nil, err
	}
	return pred.Select(out)
}
