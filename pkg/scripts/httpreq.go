package scripts

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func registerHTTP(r *Registry) {
	r.Register(&Entry{
		Script:      "http/http_request",
		Function:    "make_http_request",
		Description: "Execute an HTTP request with authentication, custom headers, body, proxy, and TLS options",
		Params: []ParamSpec{
			{Name: "url", Required: true, Description: "Target URL"},
			{Name: "method", Description: "HTTP method (default GET)"},
			{Name: "auth_type", Description: "none, basic, bearer (alias token), or custom"},
			{Name: "username", Description: "Username for basic authentication"},
			{Name: "password", Description: "Password for basic authentication"},
			{Name: "bearer_token", Description: "Token for bearer authentication"},
			{Name: "custom_auth_header", Description: "Headers map for custom authentication"},
			{Name: "headers", Description: "Additional request headers"},
			{Name: "body", Description: "Request body for POST/PUT/PATCH"},
			{Name: "proxy_server", Description: "Proxy server URL"},
			{Name: "ca_cert", Description: "Path to a CA certificate file"},
			{Name: "verify_ssl", Description: "Verify TLS certificates (default true)"},
			{Name: "timeout", Description: "Request timeout in seconds (default 30)"},
			{Name: "expected_status", Description: "Expected HTTP status code or list of codes (default 200)"},
			{Name: "retries", Description: "Retry attempts for transient failures (default 0)"},
		},
		Fn: makeHTTPRequest,
	})
}

func makeHTTPRequest(ctx context.Context, params map[string]any) *Result {
	target, _ := stringParam(params, "url")
	if target == "" {
		return &Result{Stderr: "URL parameter is required", ReturnCode: CodeParamError}
	}

	method, _ := stringParam(params, "method")
	if method == "" {
		method = "GET"
	}
	method = strings.ToUpper(method)

	authType, _ := stringParam(params, "auth_type")
	if authType == "" {
		authType = "none"
	}
	// Stored credentials use the kind "token"; on the wire that is a
	// bearer Authorization header.
	if authType == "token" {
		authType = "bearer"
	}

	username, _ := stringParam(params, "username")
	if username == "" {
		username, _ = stringParam(params, "auth_username")
	}
	password, _ := stringParam(params, "password")
	if password == "" {
		password, _ = stringParam(params, "auth_password")
	}
	bearerToken, _ := stringParam(params, "bearer_token")
	if bearerToken == "" {
		bearerToken, _ = stringParam(params, "auth_token")
	}

	switch authType {
	case "basic":
		if username == "" || password == "" {
			return &Result{
				Stderr:     "Username and password are required for basic authentication",
				ReturnCode: CodeParamError,
			}
		}
	case "bearer":
		if bearerToken == "" {
			return &Result{
				Stderr:     "Bearer token is required for bearer authentication",
				ReturnCode: CodeParamError,
			}
		}
	}

	customAuth, err := mapParam(params, "custom_auth_header")
	if err != nil {
		return paramError("%v", err)
	}
	if authType == "custom" && len(customAuth) == 0 {
		return &Result{
			Stderr:     "Custom authentication headers are required for custom authentication",
			ReturnCode: CodeParamError,
		}
	}

	headers, err := mapParam(params, "headers")
	if err != nil {
		return paramError("%v", err)
	}

	timeoutSec, err := intParam(params, "timeout", 30)
	if err != nil {
		return paramError("%v", err)
	}
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	verifySSL, err := boolParam(params, "verify_ssl", true)
	if err != nil {
		return paramError("%v", err)
	}

	retries, err := intParam(params, "retries", 0)
	if err != nil {
		return paramError("%v", err)
	}
	if retries < 0 {
		retries = 0
	}

	expected, perr := expectedStatusCodes(params)
	if perr != nil {
		return paramError("%v", perr)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsConf := &tls.Config{}
	if !verifySSL {
		tlsConf.InsecureSkipVerify = true
	}
	if caCert, ok := stringParam(params, "ca_cert"); ok && caCert != "" && verifySSL {
		pem, err := os.ReadFile(caCert)
		if err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("CA certificate file not found: %s", caCert),
				ReturnCode: CodeParamError,
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return paramError("CA certificate file is not valid PEM: %s", caCert)
		}
		tlsConf.RootCAs = pool
	}
	transport.TLSClientConfig = tlsConf

	if proxy, ok := stringParam(params, "proxy_server"); ok && proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return paramError("invalid proxy_server: %v", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.Logger = nil
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(timeoutSec) * time.Second,
	}

	var bodyReader io.Reader
	contentType := ""
	if body, present := params["body"]; present && body != nil && method != "GET" && method != "HEAD" {
		switch b := body.(type) {
		case string:
			bodyReader = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return paramError("body is not serializable: %v", err)
			}
			bodyReader = strings.NewReader(string(encoded))
			contentType = "application/json"
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return paramError("invalid request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	switch authType {
	case "basic":
		req.SetBasicAuth(username, password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	case "custom":
		for k, v := range customAuth {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &Result{
				Exception:  fmt.Sprintf("Request timed out after %d seconds", timeoutSec),
				ReturnCode: CodeError,
			}
		}
		return &Result{
			Exception:  fmt.Sprintf("Request error: %v", err),
			ReturnCode: CodeError,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{
			Exception:  fmt.Sprintf("Request error: %v", err),
			ReturnCode: CodeError,
		}
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	details := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"url":         resp.Request.URL.String(),
		"elapsed":     time.Since(start).String(),
	}
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		details["body"] = parsed
	} else {
		details["body"] = string(raw)
	}
	rendered, _ := json.MarshalIndent(details, "", "  ")

	for _, code := range expected {
		if resp.StatusCode == code {
			return &Result{Stdout: string(rendered), ReturnCode: CodeOK}
		}
	}
	return &Result{
		Stdout:     string(rendered),
		Stderr:     fmt.Sprintf("Expected status %v, got %d", expected, resp.StatusCode),
		ReturnCode: CodeFailed,
	}
}

// expectedStatusCodes reads expected_status as a single code or a list.
func expectedStatusCodes(params map[string]any) ([]int, error) {
	raw, present := params["expected_status"]
	if !present || raw == nil {
		return []int{http.StatusOK}, nil
	}
	if list, ok := raw.([]any); ok {
		codes := make([]int, 0, len(list))
		for _, item := range list {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("expected_status entries must be integers: %v", err)
			}
			codes = append(codes, n)
		}
		if len(codes) == 0 {
			return []int{http.StatusOK}, nil
		}
		return codes, nil
	}
	n, err := toInt(raw)
	if err != nil {
		return nil, fmt.Errorf("expected_status must be an integer or list: %v", err)
	}
	return []int{n}, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
