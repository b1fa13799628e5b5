package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"restorepick/internal/domain"
	"restorepick/internal/logging"
	"restorepick/internal/metrics"
	"restorepick/internal/retry"
)

var ErrNothingSelected = errors.New("nothing selected")

// APIError is a failure reported by the backup API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backup api: status %d", e.StatusCode)
	}
	if e.Code == "" {
		return fmt.Sprintf("backup api: %s (%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("backup api: %s: %s (%d)", e.Code, e.Message, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type RemoteConfig struct {
	BaseURL    string
	SiteID     string
	Token      string
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
}

// RemoteClient lists and restores snapshots through the backup REST API.
type RemoteClient struct {
	baseURL     string
	siteID      string
	token       string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger
}

func NewRemoteClient(cfg RemoteConfig) *RemoteClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &RemoteClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		siteID:      cfg.SiteID,
		token:       cfg.Token,
		httpClient:  httpClient,
		retryConfig: cfg.Retry,
		log:         logging.Named("remote"),
	}
}

type listingBody struct {
	BackupID string `json:"backup_id"`
	Path     string `json:"path"`
}

type listingEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`
	TotalItems  int    `json:"total_items"`
	Size        int64  `json:"size"`
	ModTime     int64  `json:"mtime"`
}

type restoreTypes struct {
	IncludePathList string `json:"include_path_list"`
	ExcludePathList string `json:"exclude_path_list,omitempty"`
}

type restoreBody struct {
	Types restoreTypes `json:"types"`
}

type downloadBody struct {
	RewindID string       `json:"rewindId"`
	Types    restoreTypes `json:"types"`
}

type restoreResponse struct {
	RestoreID  int64 `json:"restore_id"`
	DownloadID int64 `json:"downloadId"`
}

type apiErrorBody struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (client *RemoteClient) List(ctx context.Context, req ListRequest) (ListResult, error) {
	start := time.Now()
	endpoint := "/sites/" + url.PathEscape(client.siteID) + "/rewind/backup/ls"
	payload := listingBody{BackupID: req.RewindID, Path: req.Path}

	items, err := retry.DoWithResult(ctx, client.retryConfig, func() ([]domain.ListItem, error) {
		body, err := client.post(ctx, endpoint, payload)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return decodeListing(body)
	})
	duration := time.Since(start)
	metrics.RecordListing("remote", duration, err == nil)
	if err != nil {
		client.log.Warn("listing failed", zap.String("rewind", req.RewindID), zap.String("path", req.Path), zap.Error(err))
		return ListResult{Path: req.Path}, fmt.Errorf("list %s: %w", req.Path, err)
	}
	client.log.Debug("listing fetched",
		zap.String("rewind", req.RewindID),
		zap.String("path", req.Path),
		zap.Int("items", len(items)),
		zap.Duration("duration", duration),
	)
	return ListResult{Path: req.Path, Items: items, Duration: duration}, nil
}

// Restore submits a granular restore or download. Submissions are not
// retried since the API does not deduplicate them.
func (client *RemoteClient) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	start := time.Now()
	result := RestoreResult{Kind: req.Kind}
	if req.CheckList.Empty() {
		return result, ErrNothingSelected
	}
	types := restoreTypes{
		IncludePathList: req.CheckList.IncludePaths(),
		ExcludePathList: req.CheckList.ExcludePaths(),
	}

	var endpoint string
	var payload interface{}
	switch req.Kind {
	case domain.KindRestore:
		endpoint = "/activity-log/" + url.PathEscape(client.siteID) + "/rewind/to/" + url.PathEscape(req.RewindID)
		payload = restoreBody{Types: types}
	case domain.KindDownload:
		endpoint = "/sites/" + url.PathEscape(client.siteID) + "/rewind/downloads"
		payload = downloadBody{RewindID: req.RewindID, Types: types}
	default:
		return result, fmt.Errorf("unsupported request kind %q", req.Kind)
	}

	body, err := client.post(ctx, endpoint, payload)
	if err != nil {
		metrics.RecordRestore(string(req.Kind), 0, false)
		client.log.Error("restore request failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		return result, fmt.Errorf("%s request: %w", req.Kind, err)
	}
	defer body.Close()

	var response restoreResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		metrics.RecordRestore(string(req.Kind), 0, false)
		return result, fmt.Errorf("decode %s response: %w", req.Kind, err)
	}

	id := response.RestoreID
	if req.Kind == domain.KindDownload {
		id = response.DownloadID
	}
	result.ID = strconv.FormatInt(id, 10)
	result.SuccessCount = req.CheckList.TotalItems
	result.Duration = time.Since(start)
	result.Message = fmt.Sprintf("%s %s queued", req.Kind, result.ID)
	metrics.RecordRestore(string(req.Kind), req.CheckList.TotalItems, true)
	client.log.Info("restore request queued",
		zap.String("kind", string(req.Kind)),
		zap.String("id", result.ID),
		zap.String("include", types.IncludePathList),
		zap.String("exclude", types.ExcludePathList),
	)
	return result, nil
}

// post sends a JSON body and returns the (decompressed) response body.
// Transport failures, 429 and 5xx responses are retryable.
func (client *RemoteClient) post(ctx context.Context, endpoint string, payload interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if client.token != "" {
		req.Header.Set("Authorization", "Bearer "+client.token)
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Retryable(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := readAPIError(resp)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.Retryable(apiErr)
		}
		return nil, apiErr
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		return &gzipReadCloser{gr: reader, body: resp.Body}, nil
	}
	return resp.Body, nil
}

func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body apiErrorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}

// decodeListing reads {"ok":..,"error":..,"contents":{name:{..},..}} while
// keeping the order of the contents object, which is the listing order.
func decodeListing(r io.Reader) ([]domain.ListItem, error) {
	decoder := json.NewDecoder(r)
	if err := expectDelim(decoder, '{'); err != nil {
		return nil, err
	}
	ok := true
	var message string
	var items []domain.ListItem
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, _ := token.(string)
		switch key {
		case "ok":
			if err := decoder.Decode(&ok); err != nil {
				return nil, err
			}
		case "error":
			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				return nil, err
			}
			_ = json.Unmarshal(raw, &message)
		case "contents":
			items, err = decodeContents(decoder)
			if err != nil {
				return nil, err
			}
		default:
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return nil, err
			}
		}
	}
	if !ok {
		return nil, &APIError{StatusCode: http.StatusOK, Code: "listing_failed", Message: message}
	}
	return items, nil
}

func decodeContents(decoder *json.Decoder) ([]domain.ListItem, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	switch token {
	case json.Delim('['):
		// An empty listing is sometimes sent as [].
		for decoder.More() {
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return nil, err
			}
		}
		return []domain.ListItem{}, expectDelim(decoder, ']')
	case json.Delim('{'):
	default:
		return nil, fmt.Errorf("unexpected contents token %v", token)
	}

	items := []domain.ListItem{}
	for decoder.More() {
		nameToken, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		name, _ := nameToken.(string)
		var entry listingEntry
		if err := decoder.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", name, err)
		}
		item := domain.ListItem{
			ID:          entry.ID,
			Name:        strings.TrimSuffix(name, "/"),
			Type:        domain.ParseNodeType(entry.Type),
			HasChildren: entry.HasChildren,
			TotalItems:  entry.TotalItems,
			Size:        entry.Size,
		}
		if entry.ModTime > 0 {
			item.ModTime = time.Unix(entry.ModTime, 0)
		}
		items = append(items, item)
	}
	return items, expectDelim(decoder, '}')
}

func expectDelim(decoder *json.Decoder, delim json.Delim) error {
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if token != delim {
		return fmt.Errorf("expected %v, got %v", delim, token)
	}
	return nil
}

type gzipReadCloser struct {
	gr   *gzip.Reader
	body io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	g.gr.Close()
	return g.body.Close()
}
