package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	coinMarketCapProvider  = "coinmarketcap"
	coinMarketCapQuotePath = "/v1/cryptocurrency/quotes/latest"
	defaultCoinMarketCap   = "https://pro-api.coinmarketcap.com"
)

// CoinMarketCapOptions parameterise the CoinMarketCap fetcher.
type CoinMarketCapOptions struct {
	APIKey     string
	BaseURL    string
	Symbol     string
	Convert    string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
}

// CoinMarketCap reads the latest quote of a single symbol.
type CoinMarketCap struct {
	opts   CoinMarketCapOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewCoinMarketCap constructs a CoinMarketCap price source.
func NewCoinMarketCap(opts CoinMarketCapOptions, logger zerolog.Logger) *CoinMarketCap {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultCoinMarketCap
	}
	opts.Symbol = strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if opts.Symbol == "" {
		opts.Symbol = "BTC"
	}
	opts.Convert = strings.ToUpper(strings.TrimSpace(opts.Convert))
	if opts.Convert == "" {
		opts.Convert = "USD"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pricetracker/1.0"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accepts", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)
	if opts.RetryCount > 0 {
		client.SetRetryCount(opts.RetryCount).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(5 * time.Second)
	}

	return &CoinMarketCap{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "cmc_fetcher").Logger(),
	}
}

// FetchPrice retrieves the latest price of the configured symbol in the convert currency.
func (c *CoinMarketCap) FetchPrice(ctx context.Context) (float64, error) {
	if c.opts.APIKey == "" {
		return 0, c.fail(0, errors.New("api key not configured"))
	}

	var payload quotesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-CMC_PRO_API_KEY", c.opts.APIKey).
		SetQueryParam("symbol", c.opts.Symbol).
		SetQueryParam("convert", c.opts.Convert).
		SetResult(&payload).
		SetError(&payload).
		Get(coinMarketCapQuotePath)
	if err != nil {
		return 0, c.fail(0, err)
	}

	if resp.IsError() {
		msg := strings.TrimSpace(payload.Status.ErrorMessage)
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		if msg == "" {
			msg = resp.Status()
		}
		return 0, c.fail(resp.StatusCode(), errors.New(msg))
	}

	if payload.Status.ErrorCode != 0 {
		return 0, c.fail(resp.StatusCode(), fmt.Errorf("error code %d: %s", payload.Status.ErrorCode, payload.Status.ErrorMessage))
	}

	asset, ok := payload.Data[c.opts.Symbol]
	if !ok {
		return 0, c.fail(resp.StatusCode(), fmt.Errorf("response missing data.%s", c.opts.Symbol))
	}
	quote, ok := asset.Quote[c.opts.Convert]
	if !ok || quote.Price == nil {
		return 0, c.fail(resp.StatusCode(), fmt.Errorf("response missing data.%s.quote.%s.price", c.opts.Symbol, c.opts.Convert))
	}
	if *quote.Price <= 0 {
		return 0, c.fail(resp.StatusCode(), fmt.Errorf("non-positive price %v", *quote.Price))
	}

	c.logger.Debug().Str("symbol", c.opts.Symbol).Float64("price", *quote.Price).Msg("quote fetched")
	return *quote.Price, nil
}

func (c *CoinMarketCap) fail(status int, err error) error {
	return &ProviderError{Provider: coinMarketCapProvider, Op: "quotes/latest", StatusCode: status, Err: err}
}

type quotesResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price       *float64 `json:"price"`
			LastUpdated string   `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

var _ PriceSource = (*CoinMarketCap)(nil)
