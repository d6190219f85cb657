package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/yegors/aussie-atis/pkg/logger"
)

// ErrUnexpectedStatus is returned when the airport page answers with a non-200 status
var ErrUnexpectedStatus = errors.New("unexpected status code")

// DefaultBaseURL is the airport information page; {code} is replaced by the lower-case ICAO code
const DefaultBaseURL = "http://aussieadsb.com/airportinfo/{code}"

// Config controls how airport pages are fetched
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryWait      time.Duration
	UserAgent      string
}

// Fetcher retrieves airport pages and isolates their text blocks
type Fetcher struct {
	config Config
	client *resty.Client
	logger *logger.Logger
}

// NewFetcher creates a fetcher with retry and backoff on transport errors and 5xx answers
func NewFetcher(config Config, log *logger.Logger) *Fetcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.RetryWait <= 0 {
		config.RetryWait = 500 * time.Millisecond
	}

	f := &Fetcher{
		config: config,
		logger: log.Named("atis-fetcher"),
	}

	client := resty.New()
	client.SetTimeout(config.RequestTimeout)
	client.SetRetryCount(config.MaxRetries)
	client.SetRetryWaitTime(config.RetryWait)
	client.SetRetryMaxWaitTime(8 * config.RetryWait)
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r == nil || r.StatusCode() >= http.StatusInternalServerError
	})
	client.AddRetryHook(func(r *resty.Response, err error) {
		var fields []logger.Field
		if r != nil && r.Request != nil {
			fields = append(fields, logger.String("url", r.Request.URL), logger.Int("attempt", r.Request.Attempt))
		}
		if err != nil {
			fields = append(fields, logger.Error(err))
		} else if r != nil {
			fields = append(fields, logger.Int("status_code", r.StatusCode()))
		}
		f.logger.Warn("Airport page request failed, retrying", fields...)
	})
	f.client = client

	return f
}

// PageURL returns the page address for an airport
func (f *Fetcher) PageURL(airportCode string) string {
	return strings.ReplaceAll(f.config.BaseURL, "{code}", strings.ToLower(airportCode))
}

// FetchPage downloads the raw airport page
func (f *Fetcher) FetchPage(ctx context.Context, airportCode string) ([]byte, error) {
	url := f.PageURL(airportCode)

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode(), url)
	}

	f.logger.Debug("Fetched airport page",
		logger.String("airport", airportCode),
		logger.Int("bytes", len(resp.Body())),
		logger.Duration("duration", resp.Time()))

	return resp.Body(), nil
}

// Fetch downloads the airport page and returns its ATIS, METAR and TAF blocks
func (f *Fetcher) Fetch(ctx context.Context, airportCode string) (Blocks, error) {
	page, err := f.FetchPage(ctx, airportCode)
	if err != nil {
		return Blocks{}, err
	}

	blocks, err := ExtractBlocks(bytes.NewReader(page))
	if err != nil {
		return Blocks{}, err
	}
	if blocks.Empty() {
		return blocks, fmt.Errorf("%s: %w", airportCode, ErrBlockNotFound)
	}
	return blocks, nil
}
