// Package upload sends user images to Cloudinary through its unsigned
// upload API and returns the hosted URL.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// MaxImageSize is the largest accepted upload in bytes.
const MaxImageSize = 5 * 1024 * 1024

var (
	// ErrNotImage is returned when the content type is not image/*.
	ErrNotImage = errors.New("only image files are accepted")
	// ErrTooLarge is returned when the payload exceeds MaxImageSize.
	ErrTooLarge = errors.New("image exceeds the 5 MB size limit")
)

// EndpointError reports a non-2xx response from the upload endpoint.
type EndpointError struct {
	Status int
	Detail string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("upload endpoint returned %d: %s", e.Status, e.Detail)
}

// Client uploads images using an unsigned upload preset.
type Client struct {
	endpoint   string
	preset     string
	folder     string
	httpClient *http.Client
}

// NewClient creates a Client for the given Cloudinary cloud name, unsigned
// preset and target folder.
func NewClient(cloudName, preset, folder string) *Client {
	return &Client{
		endpoint:   fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		preset:     preset,
		folder:     folder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

// Upload validates the file and posts it to the upload endpoint, returning
// the hosted URL.
func (c *Client) Upload(ctx context.Context, filename, contentType string, size int64, data []byte) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}
	if size > MaxImageSize || int64(len(data)) > MaxImageSize {
		return "", ErrTooLarge
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("upload_preset", c.preset); err != nil {
		return "", fmt.Errorf("unable to build upload form: %w", err)
	}
	if c.folder != "" {
		if err := mw.WriteField("folder", c.folder); err != nil {
			return "", fmt.Errorf("unable to build upload form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("unable to build upload form: %w", err)
	}
	if _, err = part.Write(data); err != nil {
		return "", fmt.Errorf("unable to build upload form: %w", err)
	}
	if err = mw.Close(); err != nil {
		return "", fmt.Errorf("unable to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &EndpointError{Status: res.StatusCode, Detail: strings.TrimSpace(string(resBody))}
	}

	var parsed uploadResponse
	if err = sonic.Unmarshal(resBody, &parsed); err != nil {
		return "", fmt.Errorf("unable to parse upload response: %w", err)
	}
	if parsed.SecureURL != "" {
		return parsed.SecureURL, nil
	}
	if parsed.URL != "" {
		return parsed.URL, nil
	}
	return "", &EndpointError{Status: res.StatusCode, Detail: "response did not contain a url"}
}
