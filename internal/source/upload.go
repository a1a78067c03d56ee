package source

import (
	"context"
	"fmt"
	"mime/multipart"
)

// Upload reads the audio file from an in-flight multipart request.
type Upload struct {
	form     *multipart.Form
	field    string
	maxBytes int64
}

func NewUpload(form *multipart.Form, field string, maxBytes int64) *Upload {
	return &Upload{form: form, field: field, maxBytes: maxBytes}
}

func (u *Upload) Fetch(_ context.Context) (*File, error) {
	if u.form == nil || len(u.form.File[u.field]) == 0 {
		return nil, ErrMissingPart
	}

	header := u.form.File[u.field][0]
	if header.Filename == "" {
		return nil, ErrEmptyFilename
	}

	part, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}

	f := NewFile(part, header.Filename)
	if err := checkSize(f, u.maxBytes); err != nil {
		_ = part.Close()
		return nil, err
	}

	return f, nil
}
