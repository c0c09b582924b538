package upstream

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/kiwari-pos/station/internal/normalize"
)

// UploadImage stores a design image on the backend and returns its URL.
func (c *Conn) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/uploads",
		raw:         buf.Bytes(),
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return "", err
	}
	m := normalize.Map(resp)
	u := normalize.String(first(m, "url", "imageUrl", "location"))
	if u == "" {
		return "", &RejectedError{Status: http.StatusBadGateway, Message: "upload returned no url"}
	}
	return u, nil
}
