package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

func pathID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errs.Validation("invalid id")
	}
	return id, nil
}

// pageParams reads ?page=&size=. Malformed values fall back to defaults.
func pageParams(c *gin.Context) model.PageRequest {
	var p model.PageRequest
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("size")); err == nil {
		p.Size = v
	}
	return p
}

// formFieldsSlack is the body allowance on top of the file limit for the
// other form fields and multipart framing.
const formFieldsSlack = 1 << 20

// formUpload reads an optional multipart file. A missing part, or a body that
// is not multipart at all, yields nil. The body is capped before parsing.
func formUpload(c *gin.Context, field string, maxBytes int64) (*model.Upload, error) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+formFieldsSlack)
	}
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		case errors.As(err, &tooLarge):
			return nil, errs.Validation(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, errs.Validation("malformed multipart body")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, errs.Validation(fmt.Sprintf("%s exceeds %d bytes", field, maxBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &model.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
