package price

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Number — числовое поле ответа Dexscreener.
// Русский комментарий: API отдаёт числа то строкой ("0.0123"), то числом, то null.
// Valid=false означает, что поле отсутствует или null.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Нечисловая строка: поле есть, но значения нет
			*n = Number{Value: math.NaN(), Valid: true}
			return nil
		}
		*n = Number{Value: v, Valid: true}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*n = Number{Value: math.NaN(), Valid: true}
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

// searchResponse — ответ /latest/dex/tokens/{addr} и /latest/dex/search.
type searchResponse struct {
	Name  string `json:"name"`
	Pairs []pair `json:"pairs"`
}

type token struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	LogoURI  string `json:"logoURI"`
	ImageURL string `json:"imageUrl"`
}

type pairInfo struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	ImageURL   string `json:"imageUrl"`
	PriceUSD   Number `json:"priceUsd"`
	MarketCap  Number `json:"marketCap"`
	MarketCap2 Number `json:"market_cap"`
}

type pair struct {
	BaseToken    *token    `json:"baseToken"`
	Token0       *token    `json:"token0"`
	Token        *token    `json:"token"`
	Info         *pairInfo `json:"info"`
	PriceUSD     Number    `json:"priceUsd"`
	Price        Number    `json:"price"`
	PriceNative  Number    `json:"priceNative"`
	NativePrice  Number    `json:"nativePrice"`
	MarketCap    Number    `json:"marketCap"`
	MarketCap2   Number    `json:"market_cap"`
	MarketCapUSD Number    `json:"marketCapUsd"`
	Volume       struct {
		H24 Number `json:"h24"`
	} `json:"volume"`
}

// TokenInfo — данные токена для ответа пользователю.
// Поля-указатели равны nil, если значение неизвестно.
type TokenInfo struct {
	Name        string
	Symbol      string
	PriceUSD    *float64
	PriceNative *float64
	MarketCap   *float64
	ImageURL    string
}

// bestPair выбирает пару с максимальным объёмом за 24 часа.
// При равенстве побеждает первая, отсутствующий объём считается нулём.
func bestPair(pairs []pair) *pair {
	if len(pairs) == 0 {
		return nil
	}
	best := 0
	bestVol := volume(pairs[0])
	for i := 1; i < len(pairs); i++ {
		if v := volume(pairs[i]); v > bestVol {
			best, bestVol = i, v
		}
	}
	return &pairs[best]
}

func volume(p pair) float64 {
	v := p.Volume.H24
	if !v.Valid || math.IsNaN(v.Value) {
		return 0
	}
	return v.Value
}

// firstNumber берёт первое присутствующее поле; ноль и NaN считаются отсутствующим значением.
func firstNumber(candidates ...Number) *float64 {
	for _, c := range candidates {
		if !c.Valid {
			continue
		}
		if c.Value == 0 || math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return nil
		}
		v := c.Value
		return &v
	}
	return nil
}

func firstString(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// extract собирает TokenInfo из лучшей пары с цепочками запасных полей.
func extract(resp *searchResponse, p *pair) *TokenInfo {
	base := p.BaseToken
	if base == nil {
		base = p.Token0
	}
	if base == nil {
		base = p.Token
	}
	if base == nil {
		base = &token{}
	}
	info := p.Info
	if info == nil {
		info = &pairInfo{}
	}

	return &TokenInfo{
		Name:        firstString(base.Name, base.Symbol, info.Name, info.Symbol, resp.Name),
		Symbol:      firstString(base.Symbol, info.Symbol),
		PriceUSD:    firstNumber(p.PriceUSD, p.Price, info.PriceUSD),
		PriceNative: firstNumber(p.PriceNative, p.NativePrice),
		MarketCap:   firstNumber(p.MarketCap, p.MarketCap2, info.MarketCap, info.MarketCap2, p.MarketCapUSD),
		ImageURL:    firstString(info.ImageURL, base.LogoURI, base.ImageURL),
	}
}
