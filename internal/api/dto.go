package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"linkkeeper/internal/library"
)

// CreateLinkRequest is the body of POST /api/links.
type CreateLinkRequest struct {
	URL   string `json:"url" validate:"required,max=4096"`
	Title string `json:"title" validate:"max=512"`
	Note  string `json:"note" validate:"max=8192"`
}

// UpdateLinkRequest is the body of PATCH /api/links/{id}. Absent fields
// are left unchanged.
type UpdateLinkRequest struct {
	Title       *string   `json:"title" validate:"omitempty,max=512"`
	Description *string   `json:"description" validate:"omitempty,max=8192"`
	Thumbnail   *string   `json:"thumbnail" validate:"omitempty,url"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=64,dive,min=1,max=64"`
	Author      *string   `json:"author" validate:"omitempty,max=256"`
	PublishDate *string   `json:"publishDate" validate:"omitempty,max=64"`
	Duration    *string   `json:"duration" validate:"omitempty,max=64"`
}

func (r UpdateLinkRequest) edit() library.Edit {
	return library.Edit{
		Title:       r.Title,
		Description: r.Description,
		Thumbnail:   r.Thumbnail,
		Category:    r.Category,
		Tags:        r.Tags,
		Author:      r.Author,
		PublishDate: r.PublishDate,
		Duration:    r.Duration,
	}
}

// CategoryRequest is the body of category create and rename.
type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type fieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// requestValidator reports struct tag violations by JSON field name.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

func (rv *requestValidator) validate(req any) []fieldError {
	err := rv.v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Msg: err.Error()}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{Field: fe.Field(), Msg: fieldMessage(fe.Field(), fe.Tag(), fe.Param())})
	}
	return out
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	}
	return fmt.Sprintf("%s failed %s", field, tag)
}
