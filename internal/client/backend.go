package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/internal/model"
)

// apiPrefix is prepended to every backend route.
const apiPrefix = "/api"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// APIError describes a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.StatusCode)
}

// AudioStream is an open segment audio response. Callers must close Body.
type AudioStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// BackendClient wraps the shadowing backend REST API. Each method maps to one
// route and issues exactly one request; retries are the caller's decision.
type BackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient creates a new backend client.
func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	return NewBackendClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewBackendClientWithHTTP creates a backend client using the given http.Client.
func NewBackendClientWithHTTP(baseURL string, httpClient *http.Client) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// ListMaterials handles GET /api/materials.
func (c *BackendClient) ListMaterials(ctx context.Context) ([]model.Material, error) {
	var materials []model.Material
	if err := c.doJSON(ctx, http.MethodGet, "/materials", nil, &materials); err != nil {
		return nil, err
	}
	if materials == nil {
		materials = []model.Material{}
	}
	return materials, nil
}

// GetMaterial handles GET /api/materials/{id}. Segments come back in playback order.
func (c *BackendClient) GetMaterial(ctx context.Context, id int64) (*model.MaterialDetail, error) {
	var material model.MaterialDetail
	if err := c.doJSON(ctx, http.MethodGet, "/materials/"+itoa(id), nil, &material); err != nil {
		return nil, err
	}
	material.SortSegments()
	return &material, nil
}

// DeleteMaterial handles DELETE /api/materials/{id}.
func (c *BackendClient) DeleteMaterial(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/materials/"+itoa(id), nil, nil)
}

// ImportYouTube handles POST /api/materials/youtube.
func (c *BackendClient) ImportYouTube(ctx context.Context, videoURL string) (*model.YouTubeImportResult, error) {
	body, err := json.Marshal(map[string]string{"url": videoURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import request: %w", err)
	}

	var result model.YouTubeImportResult
	if err := c.do(ctx, http.MethodPost, "/materials/youtube", bytes.NewReader(body), "application/json", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ImportPDF handles POST /api/materials/pdf with the document in the "file" field.
func (c *BackendClient) ImportPDF(ctx context.Context, filename string, document io.Reader) (*model.PDFImportResult, error) {
	body, contentType, err := multipartBody("file", filename, "application/pdf", document)
	if err != nil {
		return nil, err
	}

	var result model.PDFImportResult
	if err := c.do(ctx, http.MethodPost, "/materials/pdf", body, contentType, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SegmentAudioURL returns the stream URL for a segment's audio without issuing a request.
func (c *BackendClient) SegmentAudioURL(segmentID int64) string {
	return c.baseURL + apiPrefix + "/segments/" + itoa(segmentID) + "/audio"
}

// StreamSegmentAudio handles GET /api/segments/{id}/audio.
func (c *BackendClient) StreamSegmentAudio(ctx context.Context, segmentID int64) (*AudioStream, error) {
	path := "/segments/" + itoa(segmentID) + "/audio"
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	return &AudioStream{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// UploadRecording handles POST /api/segments/{id}/practice with the audio in the "file" field.
func (c *BackendClient) UploadRecording(ctx context.Context, segmentID int64, filename, contentType string, audio io.Reader) (*model.Practice, error) {
	body, formType, err := multipartBody("file", filename, contentType, audio)
	if err != nil {
		return nil, err
	}

	var practice model.Practice
	if err := c.do(ctx, http.MethodPost, "/segments/"+itoa(segmentID)+"/practice", body, formType, &practice); err != nil {
		return nil, err
	}
	return &practice, nil
}

// ListPractices handles GET /api/segments/{id}/practices.
func (c *BackendClient) ListPractices(ctx context.Context, segmentID int64) ([]model.Practice, error) {
	var practices []model.Practice
	if err := c.doJSON(ctx, http.MethodGet, "/segments/"+itoa(segmentID)+"/practices", nil, &practices); err != nil {
		return nil, err
	}
	if practices == nil {
		practices = []model.Practice{}
	}
	return practices, nil
}

// GetPractice handles GET /api/practice/{id}.
func (c *BackendClient) GetPractice(ctx context.Context, id int64) (*model.Practice, error) {
	var practice model.Practice
	if err := c.doJSON(ctx, http.MethodGet, "/practice/"+itoa(id), nil, &practice); err != nil {
		return nil, err
	}
	return &practice, nil
}

// Evaluate handles POST /api/practice/{id}/evaluate.
func (c *BackendClient) Evaluate(ctx context.Context, practiceID int64) (*model.EvaluationResult, error) {
	var result model.EvaluationResult
	if err := c.doJSON(ctx, http.MethodPost, "/practice/"+itoa(practiceID)+"/evaluate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BackendClient) doJSON(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *BackendClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Upstream(fmt.Sprintf("failed to decode %s %s response", method, path), err)
	}
	return nil
}

// send executes the request and converts transport failures and non-2xx
// statuses into AppErrors. On success the caller owns resp.Body.
func (c *BackendClient) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, errors.InternalWrap("failed to create request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var timeout interface{ Timeout() bool }
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || (stderrors.As(err, &timeout) && timeout.Timeout()) {
			return nil, errors.Wrap(errors.ErrTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return nil, errors.Upstream(fmt.Sprintf("failed to send %s %s", method, path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       apiPrefix + path,
			Detail:     errorDetail(raw),
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrap(errors.ErrNotFound, notFoundMessage(apiErr), apiErr)
		}
		return nil, errors.Upstream("backend request failed", apiErr)
	}

	return resp, nil
}

// errorDetail extracts the "detail" field the backend puts in error bodies,
// falling back to the raw text.
func errorDetail(raw []byte) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(raw))
}

func notFoundMessage(apiErr *APIError) string {
	if apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "resource not found"
}

func multipartBody(field, filename, contentType string, content io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", errors.InternalWrap("failed to create multipart part", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", errors.InternalWrap("failed to read upload content", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", errors.InternalWrap("failed to finalize multipart body", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
