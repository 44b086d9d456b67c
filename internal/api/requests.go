// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

const maxBodyBytes = 1 << 20

// convertRequest is the body of the conversion and save endpoints.
type convertRequest struct {
	URLs        []string `json:"urls" validate:"required,min=1,dive,required,max=2048"`
	Format      string   `json:"format" validate:"omitempty,max=8"`
	Quality     string   `json:"quality" validate:"omitempty,max=16"`
	Concurrency int      `json:"concurrency" validate:"omitempty,min=1,max=256"`
}

// playlistRequest is the body of the playlist endpoint.
type playlistRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// infoRequest is the body (or query) of the metadata endpoint.
type infoRequest struct {
	URLs   []string `json:"urls" validate:"required,min=1,dive,required,max=2048"`
	Format string   `json:"format" validate:"omitempty,max=8"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Failures come back
// as *model.ValidationError.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &model.ValidationError{Reason: "request body is empty"}
		case errors.As(err, &maxErr):
			return &model.ValidationError{Reason: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		default:
			return &model.ValidationError{Reason: "malformed JSON: " + err.Error()}
		}
	}
	return s.check(dst)
}

func (s *Server) check(dst any) error {
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &model.ValidationError{Field: fieldPath(fe), Reason: describeTag(fe)}
		}
		return &model.ValidationError{Reason: err.Error()}
	}
	return nil
}

// fieldPath drops the struct name from the namespace ("convertRequest.urls[0]").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "needs at least " + fe.Param() + " item(s)"
		}
		return "must be >= " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be <= " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

// batchLimit rejects requests above the configured item count.
func (s *Server) batchLimit(urls []string) error {
	if limit := s.config().Pipeline.MaxItems; limit > 0 && len(urls) > limit {
		return &model.ValidationError{Field: "urls", Reason: fmt.Sprintf("at most %d urls per request", limit)}
	}
	return nil
}

// formatOrDefault parses raw for kind, defaulting to mp3 / mp4.
func formatOrDefault(kind model.Kind, raw string) (model.Format, error) {
	if strings.TrimSpace(raw) == "" {
		if kind == model.KindVideo {
			return model.FormatMP4, nil
		}
		return model.FormatMP3, nil
	}
	return model.ParseFormat(kind, raw)
}
