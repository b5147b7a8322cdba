package price

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/core/coretest"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/modules/limiter"
	"github.com/flybasist/gcbot/internal/store/jsonstore"
)

const (
	baseURL = "https://dex.test"
	evmAddr = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
)

func ptr(v float64) *float64 { return &v }

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, Unknown},
		{ptr(1234.5), "1,234.50"},
		{ptr(1), "1.00"},
		{ptr(1234567.891), "1,234,567.89"},
		{ptr(0.5), "0.5"},
		{ptr(0.000012345678), "0.00001235"},
		{ptr(0.000000001), "0"},
		{ptr(-0.25), "-0.25"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBestPair(t *testing.T) {
	vol := func(v float64) pair {
		p := pair{}
		p.Volume.H24 = Number{Value: v, Valid: true}
		return p
	}

	pairs := []pair{vol(10), vol(500), vol(3)}
	if got := bestPair(pairs); got != &pairs[1] {
		t.Errorf("expected pair with volume 500")
	}

	ties := []pair{vol(7), vol(7), vol(1)}
	if got := bestPair(ties); got != &ties[0] {
		t.Errorf("ties must resolve to the earliest pair")
	}

	if bestPair(nil) != nil {
		t.Error("no pairs must yield nil")
	}
}

func TestNumberUnmarshal(t *testing.T) {
	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":"0.0123","b":42,"c":null,"d":"n/a"}`), &v); err != nil {
		t.Fatal(err)
	}
	if !v.A.Valid || v.A.Value != 0.0123 {
		t.Errorf("a = %+v", v.A)
	}
	if !v.B.Valid || v.B.Value != 42 {
		t.Errorf("b = %+v", v.B)
	}
	if v.C.Valid {
		t.Errorf("null must be invalid: %+v", v.C)
	}
	if firstNumber(v.D, v.B) != nil {
		t.Error("non-numeric present field must count as unknown")
	}
}

func TestExtractFallbacks(t *testing.T) {
	raw := `{"name":"top","pairs":[{
		"token0":{"symbol":"PEPE","logoURI":"https://img.test/logo.png"},
		"price":"0.00001",
		"nativePrice":"0",
		"info":{"market_cap":1000000},
		"volume":{"h24":"15"}
	}]}`
	var resp searchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatal(err)
	}
	info := extract(&resp, bestPair(resp.Pairs))

	if info.Name != "PEPE" || info.Symbol != "PEPE" {
		t.Errorf("name/symbol = %q/%q", info.Name, info.Symbol)
	}
	if info.PriceUSD == nil || *info.PriceUSD != 0.00001 {
		t.Errorf("price = %v", info.PriceUSD)
	}
	if info.PriceNative != nil {
		t.Errorf("zero native price must be unknown, got %v", *info.PriceNative)
	}
	if info.MarketCap == nil || *info.MarketCap != 1000000 {
		t.Errorf("market cap = %v", info.MarketCap)
	}
	if info.ImageURL != "https://img.test/logo.png" {
		t.Errorf("image = %q", info.ImageURL)
	}

	caption := Caption(&TokenInfo{})
	if caption != "Unknown (—)\nPrice (USD): $—\nNative price: —\nMarket Cap: $—" {
		t.Errorf("empty caption = %q", caption)
	}
}

func newMockedClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	cfg.BaseURL = baseURL
	return NewClient(cfg, httpClient)
}

func TestLookupEndpoints(t *testing.T) {
	c := newMockedClient(t, ClientConfig{CacheTTL: 0})

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/tokens/"+evmAddr,
		httpmock.NewStringResponder(200, `{"pairs":[{"baseToken":{"name":"Pepe","symbol":"PEPE"},"priceUsd":"0.5","volume":{"h24":1}}]}`))
	var searched string
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		func(req *http.Request) (*http.Response, error) {
			searched = req.URL.Query().Get("q")
			return httpmock.NewStringResponse(200, `{"pairs":[]}`), nil
		})

	info, err := c.Lookup(context.Background(), evmAddr)
	if err != nil {
		t.Fatalf("lookup by address: %v", err)
	}
	if info.Name != "Pepe" {
		t.Errorf("name = %q", info.Name)
	}

	if _, err := c.Lookup(context.Background(), "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("search without pairs: err = %v", err)
	}

	if searched != "nothing" {
		t.Errorf("search endpoint got q=%q", searched)
	}
}

func TestLookupCachesResults(t *testing.T) {
	c := newMockedClient(t, ClientConfig{CacheTTL: time.Minute})
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		httpmock.NewStringResponder(200, `{"pairs":[{"baseToken":{"name":"Solana","symbol":"SOL"},"priceUsd":"150","volume":{"h24":1}}]}`))

	for i := 0; i < 3; i++ {
		if _, err := c.Lookup(context.Background(), "SOL"); err != nil {
			t.Fatal(err)
		}
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Errorf("expected one upstream call, got %d", n)
	}
}

func TestLookupHTTPError(t *testing.T) {
	c := newMockedClient(t, ClientConfig{})
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		httpmock.NewStringResponder(500, `oops`))

	_, err := c.Lookup(context.Background(), "SOL")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected transport error, got %v", err)
	}
}

var member = core.Participant{ID: "2", Name: "Member", Role: core.RoleMember}

func newModule(t *testing.T, limit int) (*Module, *coretest.Transport) {
	t.Helper()
	c := newMockedClient(t, ClientConfig{})
	repo, err := jsonstore.Open(filepath.Join(t.TempDir(), "db.json"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	lim := limiter.New(repo, limit, nil, zap.NewNop())
	return New(c, lim, metrics.New(), zap.NewNop()), coretest.New("g1", member)
}

func lookup(t *testing.T, m *Module, tr *coretest.Transport, args string) {
	t.Helper()
	mc := tr.Context("g1", member, "!t "+args)
	mc.Command, mc.Args = "t", args
	if err := m.handleLookup(mc); err != nil {
		t.Fatalf("lookup %q: %v", args, err)
	}
}

func TestHandleLookupReplies(t *testing.T) {
	m, tr := newModule(t, 0)

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		func(req *http.Request) (*http.Response, error) {
			switch req.URL.Query().Get("q") {
			case "PEPE":
				return httpmock.NewStringResponse(200, `{"pairs":[{"baseToken":{"name":"Pepe","symbol":"PEPE"},"priceUsd":"1234.5","priceNative":"0.5","marketCap":1000,"info":{"imageUrl":"https://img.test/pepe.png"},"volume":{"h24":9}}]}`), nil
			case "BROKEN":
				return httpmock.NewStringResponse(502, ""), nil
			}
			return httpmock.NewStringResponse(200, `{"pairs":null}`), nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://img.test/pepe.png",
		httpmock.NewBytesResponder(200, []byte{0x89, 'P', 'N', 'G'}))

	lookup(t, m, tr, "")
	if tr.LastText() != msgUsage {
		t.Errorf("usage = %q", tr.LastText())
	}

	tr.Reset()
	lookup(t, m, tr, "PEPE")
	texts := tr.Texts()
	if len(texts) != 2 || texts[0] != msgFetching {
		t.Fatalf("replies = %v", texts)
	}
	last := tr.Sent[1]
	if len(last.Image) == 0 {
		t.Error("expected image reply")
	}
	want := "Pepe (PEPE)\nPrice (USD): $1,234.50\nNative price: 0.5\nMarket Cap: $1,000.00"
	if last.Text != want {
		t.Errorf("caption = %q, want %q", last.Text, want)
	}

	tr.Reset()
	lookup(t, m, tr, "NOPE")
	if tr.LastText() != msgNotFound {
		t.Errorf("not found reply = %q", tr.LastText())
	}
	// Текстовые ответы привязаны к запросу
	for _, s := range tr.Sent {
		if s.ReplyTo != "m-2" {
			t.Errorf("reply %q not linked to the request, ReplyTo=%q", s.Text, s.ReplyTo)
		}
	}

	tr.Reset()
	lookup(t, m, tr, "BROKEN")
	if tr.LastText() != msgFailed {
		t.Errorf("error reply = %q", tr.LastText())
	}
}

func TestImageFailureFallsBackToText(t *testing.T) {
	m, tr := newModule(t, 0)
	tr.FailSendImage = true

	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		httpmock.NewStringResponder(200, `{"pairs":[{"baseToken":{"name":"Pepe","symbol":"PEPE"},"info":{"imageUrl":"https://img.test/pepe.png"}}]}`))
	httpmock.RegisterResponder(http.MethodGet, "https://img.test/pepe.png",
		httpmock.NewBytesResponder(200, []byte("img")))

	lookup(t, m, tr, "PEPE")
	if !strings.HasPrefix(tr.LastText(), "Pepe (PEPE)") || len(tr.Sent[len(tr.Sent)-1].Image) != 0 {
		t.Errorf("expected text fallback, got %v", tr.Texts())
	}
}

func TestDailyLimitIsEnforced(t *testing.T) {
	m, tr := newModule(t, 2)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/latest/dex/search",
		httpmock.NewStringResponder(200, `{"pairs":[{"baseToken":{"name":"Solana","symbol":"SOL"}}]}`))

	lookup(t, m, tr, "SOL")
	lookup(t, m, tr, "SOL")
	tr.Reset()
	lookup(t, m, tr, "SOL")

	if tr.LastText() != "⛔ Daily lookup limit reached (2/2). Try again later." {
		t.Errorf("expected refusal, got %v", tr.Texts())
	}
	if httpmock.GetTotalCallCount() != 2 {
		t.Errorf("refused lookup must not hit the API, calls = %d", httpmock.GetTotalCallCount())
	}
}

func TestIsAddress(t *testing.T) {
	if !IsAddress(evmAddr) {
		t.Error("EVM address not detected")
	}
	if !IsAddress("So11111111111111111111111111111111111111112") {
		t.Error("base58 address not detected")
	}
	if IsAddress("PEPE") || IsAddress("0x123") {
		t.Error("ticker detected as address")
	}
}
