package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// DefaultConvertURL is the external PDF conversion endpoint
const DefaultConvertURL = "http://localhost:5003/convert"

// ForwarderConfig configures the external PDF conversion call
type ForwarderConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

// DefaultForwarderConfig returns the local defaults
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{URL: DefaultConvertURL, Timeout: 60 * time.Second, RetryMax: 2}
}

// Forwarder posts PDF statements to an external conversion service
type Forwarder struct {
	client *retryablehttp.Client
	url    string
	log    logger.Logger
}

// NewForwarder creates a Forwarder
func NewForwarder(cfg ForwarderConfig, log logger.Logger) *Forwarder {
	if cfg.URL == "" {
		cfg.URL = DefaultConvertURL
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("pdf_forwarder")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{log}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	return &Forwarder{client: client, url: cfg.URL, log: log}
}

// URL returns the endpoint the forwarder posts to
func (f *Forwarder) URL() string { return f.url }

// Forward uploads pdf as the multipart field "file" and returns the decoded
// JSON reply, or the raw text when the reply is not JSON
func (f *Forwarder) Forward(ctx context.Context, filename string, pdf []byte) (interface{}, error) {
	f.log.WithFields(logger.Fields{"file": filename, "bytes": len(pdf), "url": f.url}).Info("Forwarding PDF to external service")

	body, contentType, err := multipartBody(filename, pdf)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "build multipart body", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.url, body)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeUpstreamError, f.url, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, f.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeUpstreamError, f.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		if text == "" {
			text = "Unknown error"
		}
		return nil, errors.NetworkError(errors.CodeUpstreamError, f.url,
			fmt.Errorf("external service returned %d: %s", resp.StatusCode, text))
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		f.log.Debug("External service replied with non-JSON content")
		return string(data), nil
	}

	f.log.Info("Received response from external service")
	return decoded, nil
}

func multipartBody(filename string, pdf []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "application/pdf")

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// leveledLogger adapts the service logger to retryablehttp
type leveledLogger struct {
	log logger.Logger
}

func (l leveledLogger) with(keysAndValues []interface{}) logger.Logger {
	fields := make(logger.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.log.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}
