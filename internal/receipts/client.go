// Package receipts talks to the external receipt extraction service. The
// service is opaque: it receives the file and answers with the fields it
// could read.
package receipts

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

	"github.com/shopspring/decimal"

	"billbook/internal/core"
	"billbook/internal/log"
)

const (
	serviceName = "ocr"

	// MaxFileSize bounds uploads accepted for extraction.
	MaxFileSize = 10 << 20
)

// Extractor reads structured fields off a receipt file.
type Extractor interface {
	Extract(ctx context.Context, fileName, contentType string, file io.Reader) (core.ReceiptFields, error)
}

type Client struct {
	url    string
	http   *http.Client
	logger *log.Logger
}

func NewClient(url string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger.WithComponent(log.ComponentReceipts),
	}
}

type extractResponse struct {
	Vendor   string           `json:"vendor"`
	Date     string           `json:"date"`
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
}

// Extract posts the file as multipart field "file". Every failure is an
// *core.ExternalServiceError; the call is made once.
func (c *Client) Extract(ctx context.Context, fileName, contentType string, file io.Reader) (core.ReceiptFields, error) {
	body, formType, err := multipartBody(fileName, contentType, file)
	if err != nil {
		return core.ReceiptFields{}, c.fail("upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return core.ReceiptFields{}, c.fail("upload", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.ReceiptFields{}, c.fail("upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.ReceiptFields{}, c.fail("extract", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.ReceiptFields{}, c.fail("decode", err)
	}

	fields := core.ReceiptFields{
		Vendor:   strings.TrimSpace(out.Vendor),
		Currency: core.NormalizeCurrency(out.Currency),
	}
	if out.Amount != nil {
		if out.Amount.IsNegative() {
			return core.ReceiptFields{}, c.fail("decode", fmt.Errorf("negative amount %s", out.Amount))
		}
		fields.Amount = core.MoneyFromDecimal(*out.Amount)
	}
	if out.Date != "" {
		d, err := core.ParseDate(out.Date)
		if err != nil {
			return core.ReceiptFields{}, c.fail("decode", fmt.Errorf("date %q: %w", out.Date, err))
		}
		fields.Date = d
	}
	if fields.Currency != "" {
		if err := fields.Currency.Validate(); err != nil {
			return core.ReceiptFields{}, c.fail("decode", err)
		}
	}

	c.logger.InfoContext(ctx, "Extracted receipt fields",
		"file", fileName,
		"vendor", fields.Vendor,
		log.FieldAmount, fields.Amount.String(),
		log.FieldDuration, time.Since(start).Milliseconds())
	return fields, nil
}

func (c *Client) fail(op string, err error) error {
	return &core.ExternalServiceError{Service: serviceName, Op: op, Err: err}
}

func multipartBody(fileName, contentType string, file io.Reader) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, io.LimitReader(file, MaxFileSize+1)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}
