package quest

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nexurateam/nexura-app-sub001/apperr"
)

// Payload is the body accepted when creating a quest.
type Payload struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"required,oneof=one-off weekly other"`
	Platform    string `json:"platform" validate:"required,oneof=x discord other"`
	TargetID    string `json:"target_id" validate:"required_unless=Platform other,max=64"`
	Link        string `json:"link" validate:"omitempty,url,max=255"`
	Points      int    `json:"points" validate:"gte=0,lte=100000"`
}

// ValidationError lists the fields that failed and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e.Fields[n]
	}
	return "invalid quest: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks p and returns nil or a *ValidationError. Surrounding
// whitespace in text fields is trimmed first.
func Validate(p *Payload) error {
	if p == nil {
		return &ValidationError{Fields: map[string]string{"body": "required"}}
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Category = strings.TrimSpace(p.Category)
	p.Platform = strings.TrimSpace(p.Platform)
	p.TargetID = strings.TrimSpace(p.TargetID)
	p.Link = strings.TrimSpace(p.Link)

	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
