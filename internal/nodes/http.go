package nodes

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

const (
	// NodeTypeHTTP — тип HTTP узла.
	NodeTypeHTTP = "http"

	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи параметров HTTP узла.
const (
	paramMethod          = "method"
	paramURL             = "url"
	paramHeaders         = "headers"
	paramBody            = "body"
	paramFollowRedirects = "follow_redirects"
	paramValidateSSL     = "validate_ssl"
	paramTimeoutSec      = "timeout_sec"
)

// HTTPFactory — фабрика HTTP узлов.
type HTTPFactory struct{}

// Type возвращает тип узла.
func (f *HTTPFactory) Type() string { return NodeTypeHTTP }

// Descriptor возвращает описание интерфейса http.
//
// Outputs объявлены со структурой, чтобы пути вида
// ${response.status_code} проходили статическую валидацию.
func (f *HTTPFactory) Descriptor() *domain.NodeDescriptor {
	return &domain.NodeDescriptor{
		Type: NodeTypeHTTP,
		Interface: domain.InterfaceDef{
			Description: "Выполняет HTTP запрос к внешнему API",
			Params: []domain.ParamDef{
				{Key: "url", Type: "string", Description: "URL запроса", Required: true},
				{Key: "method", Type: "string", Description: "HTTP метод (default: GET)"},
				{Key: "headers", Type: "dict", Description: "Заголовки запроса"},
				{Key: "body", Type: "any", Description: "Тело запроса"},
				{Key: "follow_redirects", Type: "boolean", Description: "Следовать редиректам (default: true)"},
				{Key: "validate_ssl", Type: "boolean", Description: "Проверять TLS сертификат (default: true)"},
				{Key: "timeout_sec", Type: "number", Description: "Таймаут запроса в секундах"},
			},
			Outputs: []domain.PortDef{
				{
					Key:  "response",
					Type: "dict",
					Structure: map[string]*domain.PortDef{
						"status_code": {Key: "status_code", Type: "number"},
						"headers":     {Key: "headers", Type: "dict"},
						"body":        {Key: "body", Type: "any"},
					},
				},
			},
			Actions: []string{ActionDefault, ActionError},
		},
	}
}

// New создаёт экземпляр HTTP узла.
func (f *HTTPFactory) New(def *domain.NodeDef) (Node, error) {
	return &HTTPNode{id: def.ID}, nil
}

// HTTPNode — узел HTTP запроса.
//
// Выполняет запрос и возвращает output "response" с полями
// status_code, headers, body. Статус >= 400 — логическая ошибка:
// узел возвращает action "error" с сохранёнными outputs, чтобы
// workflow мог обработать её через переход (node, "error").
type HTTPNode struct {
	id string
}

// ID возвращает идентификатор узла.
func (n *HTTPNode) ID() string { return n.id }

// Type возвращает тип узла.
func (n *HTTPNode) Type() string { return NodeTypeHTTP }

// Run выполняет HTTP запрос.
func (n *HTTPNode) Run(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := n.parseParams(req.Params)
	if err != nil {
		return nil, err
	}

	client := n.buildClient(cfg)

	httpReq, err := n.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrNodeCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return n.parseResponse(resp)
}

// httpParams — распарсенные параметры HTTP узла.
type httpParams struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
}

// parseParams парсит параметры HTTP узла.
func (n *HTTPNode) parseParams(params map[string]any) (*httpParams, error) {
	cfg := &httpParams{
		Method:          GetParamString(params, paramMethod),
		URL:             GetParamString(params, paramURL),
		Headers:         GetParamMapString(params, paramHeaders),
		Body:            params[paramBody],
		FollowRedirects: GetParamBool(params, paramFollowRedirects, true),
		ValidateSSL:     GetParamBool(params, paramValidateSSL, true),
		TimeoutSec:      GetParamInt(params, paramTimeoutSec),
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidParams, NodeTypeHTTP)
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func (n *HTTPNode) buildClient(cfg *httpParams) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: !cfg.ValidateSSL,
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
}

// buildRequest создаёт HTTP запрос.
func (n *HTTPNode) buildRequest(ctx context.Context, cfg *httpParams) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse парсит HTTP ответ в Result.
func (n *HTTPNode) parseResponse(resp *http.Response) (*Result, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Не удалось распарсить JSON — возвращаем как строку
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	result := NewResult(map[string]any{
		"response": map[string]any{
			"status_code": resp.StatusCode,
			"headers":     headers,
			"body":        body,
		},
	})

	// Статус >= 400 — логическая ошибка, маршрутизируется через action
	if resp.StatusCode >= 400 {
		result.Action = ActionError
	}

	return result, nil
}
