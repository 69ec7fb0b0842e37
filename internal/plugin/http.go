package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// httpClient — общая часть HTTP-плагинов: endpoint, заголовки
// и клиент с таймаутом.
//
// Атрибуты привязки:
//   - endpoint (обязательный): базовый URL внешнего сервиса
//   - timeout: таймаут запроса в секундах. Default: 30
//   - header.<Name>: дополнительный HTTP-заголовок
type httpClient struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// newHTTPClientFromBinding собирает httpClient из атрибутов привязки.
func newHTTPClientFromBinding(fc *FactoryContext, binding *config.PluginBinding) (*httpClient, error) {
	endpoint, err := fc.RequireAttr(binding, "endpoint")
	if err != nil {
		return nil, err
	}

	timeout, err := fc.AttrSeconds(binding, "timeout", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	return &httpClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		headers:  headerAttrs(binding),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// headerAttrs извлекает заголовки из атрибутов вида header.<Name>.
func headerAttrs(binding *config.PluginBinding) map[string]string {
	headers := make(map[string]string)
	for name, value := range binding.Attrs {
		if rest, ok := strings.CutPrefix(name, "header."); ok && rest != "" {
			headers[rest] = value
		}
	}
	return headers
}

// doJSON выполняет HTTP-запрос и декодирует JSON-ответ в out.
//
// HTTP >= 400 возвращается как ошибка с усечённым телом ответа:
// для диспетчера это отказ вызова backend'а, подлежащий retry.
func (c *httpClient) doJSON(ctx context.Context, method, requestURL string, body, out any) error {
	// Подготавливаем body
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	// Создаём запрос
	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	// Устанавливаем заголовки
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	// Content-Type по умолчанию для запросов с body
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	// Выполняем запрос
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// collectionURL собирает URL для операций над коллекцией.
func (c *httpClient) collectionURL(coll Collection) string {
	return c.endpoint + "/" + url.PathEscape(coll.Scope) + "/" + url.PathEscape(coll.Name)
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// httpLister — реализация "http.lister" capability collection_lister.
//
// Запрашивает листинг коллекции у внешнего каталога:
//
//	GET {endpoint}/{scope}/{name}
//
// Ожидаемый ответ:
//
//	{"contents": [{"scope":..., "name":..., "min_id":..., "max_id":...,
//	  "content_type":..., "bytes":..., "adler32":..., "path":...}],
//	 "total_files": N, "total_bytes": M}
type httpLister struct {
	*httpClient
}

func newHTTPLister(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	c, err := newHTTPClientFromBinding(fc, binding)
	if err != nil {
		return nil, err
	}
	return &httpLister{httpClient: c}, nil
}

// listingResponse — ответ каталога на запрос листинга.
type listingResponse struct {
	Contents   []listedContent `json:"contents"`
	TotalFiles int             `json:"total_files"`
	TotalBytes int64           `json:"total_bytes"`
}

// listedContent — один элемент листинга.
type listedContent struct {
	Scope       string `json:"scope"`
	Name        string `json:"name"`
	MinID       int64  `json:"min_id"`
	MaxID       int64  `json:"max_id"`
	ContentType string `json:"content_type"`
	Bytes       int64  `json:"bytes"`
	Adler32     string `json:"adler32"`
	Path        string `json:"path"`
}

// ListCollection реализует Lister.
func (l *httpLister) ListCollection(ctx context.Context, coll Collection) (*Listing, error) {
	var resp listingResponse
	if err := l.doJSON(ctx, http.MethodGet, l.collectionURL(coll), nil, &resp); err != nil {
		return nil, fmt.Errorf("list collection %s:%s: %w", coll.Scope, coll.Name, err)
	}

	listing := &Listing{
		Contents:   make([]domain.Content, 0, len(resp.Contents)),
		TotalFiles: resp.TotalFiles,
		TotalBytes: resp.TotalBytes,
	}

	for _, item := range resp.Contents {
		scope := item.Scope
		if scope == "" {
			scope = coll.Scope
		}

		listing.Contents = append(listing.Contents, domain.Content{
			Scope:       scope,
			Name:        item.Name,
			MinID:       item.MinID,
			MaxID:       item.MaxID,
			ContentType: item.ContentType,
			Bytes:       item.Bytes,
			Adler32:     item.Adler32,
			Path:        item.Path,
			Status:      domain.ContentStatusNew,
		})
	}

	if listing.TotalFiles == 0 {
		listing.TotalFiles = len(listing.Contents)
	}

	return listing, nil
}

// httpMetadataReader — реализация "http.metadata" capability metadata_reader.
//
// Читает метаданные коллекции у внешнего каталога:
//
//	GET {endpoint}/{scope}/{name}
//
// Ответ — произвольный JSON-объект, передаётся дальше как есть.
type httpMetadataReader struct {
	*httpClient
}

func newHTTPMetadataReader(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	c, err := newHTTPClientFromBinding(fc, binding)
	if err != nil {
		return nil, err
	}
	return &httpMetadataReader{httpClient: c}, nil
}

// ReadMetadata реализует MetadataReader.
func (m *httpMetadataReader) ReadMetadata(ctx context.Context, coll Collection) (map[string]any, error) {
	var meta map[string]any
	if err := m.doJSON(ctx, http.MethodGet, m.collectionURL(coll), nil, &meta); err != nil {
		return nil, fmt.Errorf("read metadata %s:%s: %w", coll.Scope, coll.Name, err)
	}
	return meta, nil
}

// httpSubmitter — реализация "http.submitter" capability submitter.
//
// Отправляет request во внешний обрабатывающий backend:
//
//	POST {endpoint}
//	{"request_id":..., "scope":..., "name":..., "priority":..., "payload":{...}}
//
// Ожидаемый ответ: {"handle": "..."} — идентификатор обработки,
// по которому её опрашивает poller.
type httpSubmitter struct {
	*httpClient
}

func newHTTPSubmitter(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	c, err := newHTTPClientFromBinding(fc, binding)
	if err != nil {
		return nil, err
	}
	return &httpSubmitter{httpClient: c}, nil
}

// submitRequest — тело запроса на submit.
type submitRequest struct {
	RequestID uuid.UUID      `json:"request_id"`
	Scope     string         `json:"scope"`
	Name      string         `json:"name"`
	Priority  int            `json:"priority"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// submitResponse — ответ backend'а на submit.
type submitResponse struct {
	Handle string `json:"handle"`
}

// Submit реализует Submitter.
func (s *httpSubmitter) Submit(ctx context.Context, req *domain.Request) (string, error) {
	body := submitRequest{
		RequestID: req.ID,
		Scope:     req.Scope,
		Name:      req.Name,
		Priority:  req.Priority,
		Payload:   req.Payload,
	}

	var resp submitResponse
	if err := s.doJSON(ctx, http.MethodPost, s.endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("submit request %s: %w", req.ID, err)
	}

	if resp.Handle == "" {
		return "", fmt.Errorf("submit request %s: backend returned empty handle", req.ID)
	}

	return resp.Handle, nil
}

// httpPoller — реализация "http.poller" capability poller.
//
// Опрашивает состояние внешней обработки:
//
//	GET {endpoint}/{handle}
//
// Ожидаемый ответ:
//
//	{"status": "running"|"done"|"failed", "outputs": {...}, "reason": "..."}
//
// status=failed возвращается как ошибка с reason backend'а.
type httpPoller struct {
	*httpClient
}

func newHTTPPoller(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	c, err := newHTTPClientFromBinding(fc, binding)
	if err != nil {
		return nil, err
	}
	return &httpPoller{httpClient: c}, nil
}

// pollResponse — ответ backend'а на опрос.
type pollResponse struct {
	Status  string         `json:"status"`
	Outputs map[string]any `json:"outputs"`
	Reason  string         `json:"reason"`
}

// Poll реализует Poller.
func (p *httpPoller) Poll(ctx context.Context, handle string) (*PollResult, error) {
	var resp pollResponse
	pollURL := p.endpoint + "/" + url.PathEscape(handle)
	if err := p.doJSON(ctx, http.MethodGet, pollURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("poll %s: %w", handle, err)
	}

	switch resp.Status {
	case "done":
		return &PollResult{Done: true, Outputs: resp.Outputs}, nil
	case "running", "pending":
		return &PollResult{Done: false, Outputs: resp.Outputs}, nil
	case "failed":
		reason := resp.Reason
		if reason == "" {
			reason = "backend reported failure without reason"
		}
		return nil, fmt.Errorf("poll %s: backend failed: %s", handle, reason)
	default:
		return nil, fmt.Errorf("poll %s: unexpected status %q", handle, resp.Status)
	}
}
