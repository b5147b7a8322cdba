package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ErrNotFound — у токена нет ни одной пары.
var ErrNotFound = errors.New("token not found")

// maxImageBytes ограничивает размер картинки токена.
const maxImageBytes = 5 << 20

var (
	evmAddress    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	base58Address = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsAddress сообщает, похожа ли строка на адрес контракта (EVM или base58).
func IsAddress(q string) bool {
	return evmAddress.MatchString(q) || base58Address.MatchString(q)
}

// ClientConfig — настройки клиента Dexscreener.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	RPS      float64       // Исходящих запросов в секунду, 0 = без ограничения
	CacheTTL time.Duration // 0 = без кэша
}

// Client — клиент Dexscreener API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
}

// NewClient создаёт клиента. httpClient может быть nil.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    httpClient,
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// Lookup ищет токен по адресу или тикеру и возвращает данные лучшей пары.
func (c *Client) Lookup(ctx context.Context, query string) (*TokenInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	cacheKey := strings.ToLower(query)
	if IsAddress(query) {
		cacheKey = query
	}
	if c.cache != nil {
		if v, ok := c.cache.Get(cacheKey); ok {
			return v.(*TokenInfo), nil
		}
	}

	var endpoint string
	if IsAddress(query) {
		endpoint = c.baseURL + "/latest/dex/tokens/" + url.PathEscape(query)
	} else {
		endpoint = c.baseURL + "/latest/dex/search?q=" + url.QueryEscape(query)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	best := bestPair(resp.Pairs)
	if best == nil {
		return nil, ErrNotFound
	}
	info := extract(&resp, best)

	if c.cache != nil {
		c.cache.Set(cacheKey, info, cache.DefaultExpiration)
	}
	return info, nil
}

// FetchImage скачивает картинку токена.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	body, err := c.get(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode dexscreener response: %w", err)
	}
	return nil
}

// get выполняет GET с таймаутом и ограничением частоты.
// Русский комментарий: Таймаут действует до закрытия тела ответа.
func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("GET %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
