package provider

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Rates: map[SourceID]float64{
			SourceSteam:     0.9259,
			SourceEpicGames: 0.0111,
			SourceXbox:      0.9259,
			SourceGOG:       0.9259,
			SourceLoaded:    1.17,
		},
		ExchangeRates: map[Currency]float64{
			USD: 0.9259,
			GBP: 1.17,
			INR: 0.0111,
		},
		EURToUSD: 1.08,
		AsOf:     time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRegistryIsComplete(t *testing.T) {
	require.NoError(t, ValidateRegistry())
	assert.Len(t, Registry(), len(AllSources))

	id, ok := ParseSourceID(" Steam ")
	assert.True(t, ok)
	assert.Equal(t, SourceSteam, id)

	_, ok = ParseSourceID("origin")
	assert.False(t, ok)
}

func TestNormalize_GenuineDiscount(t *testing.T) {
	n := NewNormalizer(testOptions())

	rec, err := n.Normalize(SourceSteam, RawRecord{
		"price":    "€19.99",
		"original": "€39.99",
		"title":    "X",
	})
	require.NoError(t, err)

	assert.Equal(t, SourceSteam, rec.Source)
	assert.Equal(t, "X", rec.Title)
	assert.Equal(t, PlatformPC, rec.Platform)
	assert.Equal(t, "Steam", rec.Storefront)
	assert.Equal(t, 19.99, rec.PriceEUR)
	require.NotNil(t, rec.OriginalPriceEUR)
	assert.Equal(t, 39.99, *rec.OriginalPriceEUR)
	assert.True(t, rec.DiscountReliable)
	assert.InDelta(t, 50.0, rec.DiscountPct, 0.05)
	require.NotNil(t, rec.PriceUSD)
	assert.Equal(t, 21.59, *rec.PriceUSD)
}

func TestNormalize_SourceWithoutOriginalPrice(t *testing.T) {
	n := NewNormalizer(testOptions())

	rec, err := n.Normalize(SourceXbox, RawRecord{
		"title":       "Halo Infinite",
		"price_text":  "$59.99",
		"original":    "$99.99",
		"discount":    "40%",
		"product_url": "https://www.xbox.com/en-US/games/store/halo-infinite/9PP5G1F0C2B6",
	})
	require.NoError(t, err)

	assert.False(t, rec.DiscountReliable)
	assert.Equal(t, DiscountSentinel, rec.DiscountPct)
	assert.Nil(t, rec.OriginalPriceEUR)
	assert.Equal(t, PlatformXbox, rec.Platform)
	assert.Equal(t, "Microsoft Store", rec.Storefront)
	assert.Equal(t, 55.54, rec.PriceEUR)
	require.NotNil(t, rec.PriceUSD)
	assert.Equal(t, 59.99, *rec.PriceUSD)
}

func TestNormalize_MissingTitle(t *testing.T) {
	n := NewNormalizer(testOptions())

	_, err := n.Normalize(SourceSteam, RawRecord{"price_raw": "$9.99", "title": "   "})
	require.Error(t, err)

	var nerr *NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, ReasonMissingTitle, nerr.Reason)
	assert.Equal(t, "NormalizationError: missing title", nerr.ReasonCode())
}

func TestNormalize_PriceFailures(t *testing.T) {
	n := NewNormalizer(testOptions())

	tests := []struct {
		name   string
		source SourceID
		raw    RawRecord
		reason string
	}{
		{"no price column", SourceSteam, RawRecord{"title": "A"}, ReasonMissingPrice},
		{"placeholder price", SourceGOG, RawRecord{"title": "A", "price_final": "N/A"}, ReasonMissingPrice},
		{"no digits", SourceSteam, RawRecord{"title": "A", "price_raw": "see store"}, ReasonUnparseablePrice},
		{"unknown symbol", SourceSteam, RawRecord{"title": "A", "price_raw": "¥1200"}, ReasonUnmappableCurrency},
		{"unknown code", SourceSteam, RawRecord{"title": "A", "price_raw": "12.00 CHF"}, ReasonUnmappableCurrency},
		{"mixed currencies", SourceSteam, RawRecord{"title": "A", "price_raw": "$12 / £10"}, ReasonUnmappableCurrency},
		{"several amounts with text", SourceLoaded, RawRecord{"title": "A", "price_raw": "Was £39.99 Now £25.99"}, ReasonUnparseablePrice},
		{"unknown currency column", SourceGOG, RawRecord{"title": "A", "price_final": "9.99", "price_currency": "PLN"}, ReasonUnmappableCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.source, tt.raw)
			var nerr *NormalizationError
			require.True(t, errors.As(err, &nerr), "got %v", err)
			assert.Equal(t, tt.reason, nerr.Reason)
		})
	}
}

func TestNormalize_SourceAdapters(t *testing.T) {
	n := NewNormalizer(testOptions())

	t.Run("steam discount column", func(t *testing.T) {
		rec, err := n.Normalize(SourceSteam, RawRecord{
			"source":       "steam",
			"category":     "top_sellers",
			"title":        "Cyberpunk 2077",
			"release_date": "10 Dec, 2020",
			"price_raw":    "$39.99",
			"discount_raw": "-15%",
			"product_url":  "https://store.steampowered.com/app/1091500/",
		})
		require.NoError(t, err)
		assert.Equal(t, 37.03, rec.PriceEUR)
		assert.Equal(t, 39.99, *rec.PriceUSD)
		assert.Equal(t, 15.0, rec.DiscountPct)
		assert.True(t, rec.DiscountReliable)
		assert.Equal(t, 43.56, *rec.OriginalPriceEUR)
		assert.Equal(t, "2020-12-10", rec.ReleaseDate)
		assert.Equal(t, "top_sellers", rec.Category)
		assert.False(t, rec.IsPreorder)
	})

	t.Run("steam blank discount is not on sale", func(t *testing.T) {
		rec, err := n.Normalize(SourceSteam, RawRecord{
			"title":        "Stardew Valley",
			"price_raw":    "$14.99",
			"discount_raw": "",
		})
		require.NoError(t, err)
		assert.True(t, rec.DiscountReliable)
		assert.Equal(t, 0.0, rec.DiscountPct)
		assert.Equal(t, rec.PriceEUR, *rec.OriginalPriceEUR)
	})

	t.Run("steam unreadable discount is unknown", func(t *testing.T) {
		rec, err := n.Normalize(SourceSteam, RawRecord{
			"title":        "A",
			"price_raw":    "$19.99",
			"discount_raw": "see store",
		})
		require.NoError(t, err)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
		assert.Nil(t, rec.OriginalPriceEUR)
	})

	t.Run("steam unreadable original is unknown", func(t *testing.T) {
		rec, err := n.Normalize(SourceSteam, RawRecord{
			"title":     "A",
			"price_raw": "$19.99",
			"original":  "see store",
		})
		require.NoError(t, err)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
		assert.Nil(t, rec.OriginalPriceEUR)
	})

	t.Run("placeholder words are valid titles", func(t *testing.T) {
		for _, title := range []string{"None", "NA"} {
			rec, err := n.Normalize(SourceSteam, RawRecord{"title": title, "price_raw": "$1.00"})
			require.NoError(t, err, title)
			assert.Equal(t, title, rec.Title)
		}
	})

	t.Run("steam upcoming release is a preorder", func(t *testing.T) {
		rec, err := n.Normalize(SourceSteam, RawRecord{"title": "A", "price_raw": "$59.99", "release_date": "Coming soon"})
		require.NoError(t, err)
		assert.True(t, rec.IsPreorder)

		rec, err = n.Normalize(SourceSteam, RawRecord{"title": "B", "price_raw": "$59.99", "release_date": "12 Mar, 2026"})
		require.NoError(t, err)
		assert.True(t, rec.IsPreorder)
		assert.Equal(t, "2026-03-12", rec.ReleaseDate)
	})

	t.Run("epic rupees with mojibake", func(t *testing.T) {
		rec, err := n.Normalize(SourceEpicGames, RawRecord{
			"name":          "Fortnite Crew Pack",
			"price of game": "â‚¹3,249",
			"date release":  "09/03/20",
			"platform":      "Windows, MacOS",
		})
		require.NoError(t, err)
		assert.Equal(t, 36.06, rec.PriceEUR)
		assert.Equal(t, 38.95, *rec.PriceUSD)
		assert.Equal(t, PlatformPC, rec.Platform)
		assert.Equal(t, "Epic Games Store", rec.Storefront)
		assert.Equal(t, "2020-09-03", rec.ReleaseDate)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
		assert.Empty(t, rec.Category)
	})

	t.Run("epic free game", func(t *testing.T) {
		rec, err := n.Normalize(SourceEpicGames, RawRecord{"name": "Rocket League", "price of game": "Free"})
		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.PriceEUR)
	})

	t.Run("loaded pounds and title inference", func(t *testing.T) {
		rec, err := n.Normalize(SourceLoaded, RawRecord{
			"title":       "EA SPORTS FC 25 PS5 Pre-Order",
			"price_raw":   "£25.99",
			"category":    " Action ",
			"product_url": "https://www.loaded.com/ea-sports-fc-25-ps5",
		})
		require.NoError(t, err)
		assert.Equal(t, 30.41, rec.PriceEUR)
		assert.Equal(t, PlatformPlayStation, rec.Platform)
		assert.Equal(t, "Loaded/CDKeys", rec.Storefront)
		assert.Equal(t, "action", rec.Category)
		assert.True(t, rec.IsPreorder)
		assert.False(t, rec.DiscountReliable)
	})

	t.Run("instant gaming storefront suffix", func(t *testing.T) {
		rec, err := n.Normalize(SourceInstantGaming, RawRecord{
			"source":        "instantgaming",
			"title":         "Elden Ring (Steam)",
			"discount":      "-31%",
			"price_raw":     "55,49 €",
			"preorder_info": "Pre-order",
			"product_url":   "https://www.instant-gaming.com/en/1234-buy-elden-ring-pc-game-steam/",
		})
		require.NoError(t, err)
		assert.Equal(t, 55.49, rec.PriceEUR)
		assert.Equal(t, 59.93, *rec.PriceUSD)
		assert.Equal(t, "Steam", rec.Storefront)
		assert.Equal(t, PlatformPC, rec.Platform)
		assert.Equal(t, 31.0, rec.DiscountPct)
		assert.Equal(t, 80.42, *rec.OriginalPriceEUR)
		assert.True(t, rec.IsPreorder)
	})

	t.Run("instant gaming unreadable discount is unknown", func(t *testing.T) {
		rec, err := n.Normalize(SourceInstantGaming, RawRecord{"title": "A", "price_raw": "9,99 €", "discount": "free"})
		require.NoError(t, err)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
		assert.Nil(t, rec.OriginalPriceEUR)
	})

	t.Run("instant gaming discount on a free price is unknown", func(t *testing.T) {
		rec, err := n.Normalize(SourceInstantGaming, RawRecord{"title": "A", "price_raw": "Free", "discount": "-50%"})
		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.PriceEUR)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
		assert.Nil(t, rec.OriginalPriceEUR)
	})

	t.Run("instant gaming dot thousands", func(t *testing.T) {
		rec, err := n.Normalize(SourceInstantGaming, RawRecord{"title": "A", "price_raw": "1.299 €"})
		require.NoError(t, err)
		assert.Equal(t, 1299.0, rec.PriceEUR)
	})

	t.Run("loaded cell with current and previous price", func(t *testing.T) {
		rec, err := n.Normalize(SourceLoaded, RawRecord{"title": "A", "price_raw": "£25.99 £39.99"})
		require.NoError(t, err)
		assert.Equal(t, 30.41, rec.PriceEUR)
	})

	t.Run("gog json values", func(t *testing.T) {
		rec, err := n.Normalize(SourceGOG, RawRecord{
			"title":               "The Witcher 3: Wild Hunt",
			"price_final":         9.99,
			"price_base":          19.99,
			"price_currency":      "USD",
			"discount_percentage": float64(50),
			"release_date":        "2015-05-18T00:00:00+03:00",
			"url":                 "https://www.gog.com/en/game/the_witcher_3_wild_hunt",
		})
		require.NoError(t, err)
		assert.Equal(t, 9.25, rec.PriceEUR)
		assert.Equal(t, 9.99, *rec.PriceUSD)
		assert.Equal(t, 18.51, *rec.OriginalPriceEUR)
		assert.InDelta(t, 50.03, rec.DiscountPct, 0.001)
		assert.Equal(t, "2015-05-18", rec.ReleaseDate)
		assert.Equal(t, "https://www.gog.com/en/game/the_witcher_3_wild_hunt", rec.ProductURL)
	})

	t.Run("gog unknown base price with zero discount", func(t *testing.T) {
		rec, err := n.Normalize(SourceGOG, RawRecord{
			"title":               "Cult of the Lamb",
			"price_final":         "24.99",
			"price_base":          "N/A",
			"discount_percentage": 0,
		})
		require.NoError(t, err)
		assert.True(t, rec.DiscountReliable)
		assert.Equal(t, 0.0, rec.DiscountPct)
	})

	t.Run("gog without any discount information", func(t *testing.T) {
		rec, err := n.Normalize(SourceGOG, RawRecord{"title": "Cult of the Lamb", "price_final": "24.99"})
		require.NoError(t, err)
		assert.False(t, rec.DiscountReliable)
		assert.Equal(t, DiscountSentinel, rec.DiscountPct)
	})
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewNormalizer(testOptions())
	raw := RawRecord{
		"title":        "Hades  II",
		"price_raw":    "$29.99",
		"discount_raw": "-10%",
		"release_date": "6 May, 2024",
	}

	first, err := n.Normalize(SourceSteam, raw)
	require.NoError(t, err)
	second, err := n.Normalize(SourceSteam, raw)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "Hades II", first.Title)
}

func TestNormalize_ConfigurationProblems(t *testing.T) {
	opts := testOptions()
	delete(opts.Rates, SourceLoaded)
	n := NewNormalizer(opts)

	_, err := n.Normalize(SourceLoaded, RawRecord{"title": "A", "price_raw": "£1"})
	assert.ErrorIs(t, err, ErrMissingRate)

	_, _, err = n.NormalizeTable(SourceLoaded, []RawRecord{{"title": "A", "price_raw": "£1"}})
	assert.ErrorIs(t, err, ErrMissingRate)

	_, err = n.Normalize(SourceID("origin"), RawRecord{"title": "A", "price": "1"})
	assert.ErrorIs(t, err, ErrUnknownSource)

	// Instant Gaming prices in EUR and needs no rate.
	_, err = n.Normalize(SourceInstantGaming, RawRecord{"title": "A", "price_raw": "1,00 €"})
	assert.NoError(t, err)
}

func TestNormalizeTable(t *testing.T) {
	n := NewNormalizer(testOptions())

	records, skipped, err := n.NormalizeTable(SourceXbox, []RawRecord{
		{"title": "Forza Horizon 5", "price_text": "$59.99"},
		{"price_text": "$19.99"},
		{"title": "Starfield", "price_text": "Free+"},
		{"title": "Broken", "price_text": "--"},
	})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Forza Horizon 5", records[0].Title)
	assert.Equal(t, "Starfield", records[1].Title)

	require.Len(t, skipped, 2)
	assert.Equal(t, Skipped{
		Source: SourceXbox,
		Row:    1,
		Reason: "NormalizationError: missing title",
		Detail: "normalize xbox record: missing title",
	}, skipped[0])
	assert.Equal(t, 3, skipped[1].Row)
	assert.Equal(t, "Broken", skipped[1].Title)
	assert.Equal(t, "NormalizationError: unparseable price", skipped[1].Reason)
}
