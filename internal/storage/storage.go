// Package storage reads and writes objects in the backend's bucket storage
// through the rest gateway: JSON documents, binary uploads, signed URLs.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/elevateanalytics/star-go/internal/rest"
)

const objectPrefix = "/storage/v1/object/"

// Client accesses object storage. All requests go through the shared
// gateway, so header composition and error surfacing behave identically to
// tabular access.
type Client struct {
	gateway *rest.Client
	logger  *slog.Logger
}

// NewClient creates a storage client over the given gateway.
func NewClient(gateway *rest.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{gateway: gateway, logger: logger}
}

// UploadJSON serializes payload and writes it to bucket/objectPath.
// overwrite selects upsert semantics; shared documents are normally
// overwrite-in-place.
func (c *Client) UploadJSON(ctx context.Context, bucket, objectPath string, payload any, overwrite bool) error {
	if payload == nil {
		payload = map[string]any{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("storage: encoding %s/%s: %w", bucket, objectPath, err)
	}

	return c.Upload(ctx, bucket, objectPath, bytes.NewReader(data), "application/json", overwrite)
}

// Upload writes a raw object. contentType may be empty, in which case the
// transport decides; the gateway never forces a JSON content type onto
// binary payloads.
func (c *Client) Upload(ctx context.Context, bucket, objectPath string, r io.Reader, contentType string, overwrite bool) error {
	opts := []rest.RequestOption{
		rest.WithRawBody(),
		rest.WithHeader("x-upsert", boolHeader(overwrite)),
	}

	if contentType != "" {
		opts = append(opts, rest.WithHeader("Content-Type", contentType))
	}

	_, err := c.gateway.Do(ctx, http.MethodPost, objectPrefix+bucket+"/"+objectPath, r, opts...)
	if err != nil {
		return err
	}

	c.logger.Debug("object uploaded",
		slog.String("bucket", bucket),
		slog.String("path", objectPath),
	)

	return nil
}

// DownloadJSON fetches bucket/objectPath and decodes it into dest. A
// missing object is an explicit absent result (false, nil), never an
// error; every other failure propagates.
func (c *Client) DownloadJSON(ctx context.Context, bucket, objectPath string, dest any) (bool, error) {
	raw, err := c.gateway.Do(ctx, http.MethodGet, objectPrefix+bucket+"/"+objectPath, nil)
	if err != nil {
		if isObjectMissing(err) {
			return false, nil
		}

		return false, err
	}

	if len(raw) == 0 {
		return false, nil
	}

	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return false, fmt.Errorf("storage: decoding %s/%s: %w", bucket, objectPath, err)
		}
	}

	return true, nil
}

// Download writes a raw object into w. The body is buffered in full
// before the write, so it suits the small JSON and document payloads
// this client moves. Missing objects are (false, nil).
func (c *Client) Download(ctx context.Context, bucket, objectPath string, w io.Writer) (bool, error) {
	raw, err := c.gateway.Do(ctx, http.MethodGet, objectPrefix+bucket+"/"+objectPath, nil)
	if err != nil {
		if isObjectMissing(err) {
			return false, nil
		}

		return false, err
	}

	if _, err := w.Write(raw); err != nil {
		return false, fmt.Errorf("storage: writing %s/%s: %w", bucket, objectPath, err)
	}

	return true, nil
}

// signedURLResponse is the body of a sign request.
type signedURLResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL creates a time-limited pre-authorized link for a private
// object. The backend returns a relative URL which is joined with the
// project base.
func (c *Client) SignedURL(ctx context.Context, bucket, objectPath string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(map[string]int64{"expiresIn": int64(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("storage: encoding sign request: %w", err)
	}

	raw, err := c.gateway.Do(ctx, http.MethodPost,
		"/storage/v1/object/sign/"+bucket+"/"+objectPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var resp signedURLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("storage: decoding sign response: %w", err)
	}

	if resp.SignedURL == "" {
		return "", fmt.Errorf("storage: sign response missing URL for %s/%s", bucket, objectPath)
	}

	if strings.HasPrefix(resp.SignedURL, "http") {
		return resp.SignedURL, nil
	}

	return c.gateway.BaseURL() + "/storage/v1" + resp.SignedURL, nil
}

// PublicURL returns the unauthenticated URL of an object in a public
// bucket. No network call is made; whether the bucket is actually public
// is the backend's concern.
func (c *Client) PublicURL(bucket, objectPath string) string {
	return c.gateway.BaseURL() + "/storage/v1/object/public/" + bucket + "/" + objectPath
}

// EncodeObjectPath builds an object path from raw segments: each segment is
// NFC-normalized and percent-encoded so names with spaces, slashes, or
// decomposed accents address a single stable object. Callers that already
// hold an encoded path must not pass it through again; the gateway never
// re-encodes caller-supplied paths.
func EncodeObjectPath(segments ...string) string {
	encoded := make([]string, len(segments))
	for i, s := range segments {
		encoded[i] = url.PathEscape(norm.NFC.String(s))
	}

	return strings.Join(encoded, "/")
}

// isObjectMissing reports whether the error is the backend's "object does
// not exist" outcome: HTTP 404 or a "not found" style message body.
func isObjectMissing(err error) bool {
	var reqErr *rest.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}

	if reqErr.StatusCode == http.StatusNotFound {
		return true
	}

	return strings.Contains(strings.ToLower(reqErr.Message), "not found")
}

// boolHeader renders the x-upsert header value.
func boolHeader(b bool) string {
	if b {
		return "true"
	}

	return "false"
}
