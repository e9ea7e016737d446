package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// decodeStrict parses exactly one JSON object into dst, rejecting unknown fields.
func decodeStrict(c *gin.Context, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Validationf("Request body is required")
		}
		return errs.Validationf("Invalid request body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errs.Validationf("Request body must contain a single JSON object")
	}
	return nil
}
