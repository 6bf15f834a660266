package conversion_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/conversion"
)

type memoryCache struct {
	values map[string]string
	getErr error
	sets   int
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.sets++
	c.values[key] = value
	return nil
}

var _ = Describe("Rate providers", func() {
	ctx := context.Background()

	Describe("LoadRateTable", func() {
		It("reads directed rates from YAML", func() {
			// Given
			path := filepath.Join(GinkgoT().TempDir(), "rates.yml")
			Expect(os.WriteFile(path, []byte("rates:\n  usd:\n    JPY: \"150.25\"\n"), 0o600)).To(Succeed())

			// When
			table, err := conversion.LoadRateTable(path)

			// Then
			Expect(err).ToNot(HaveOccurred())
			rate, ok := table.Lookup("USD", "JPY")
			Expect(ok).To(BeTrue())
			Expect(rate.String()).To(Equal("150.25"))
			_, ok = table.Lookup("JPY", "USD")
			Expect(ok).To(BeFalse())
		})

		It("rejects non-positive rates", func() {
			path := filepath.Join(GinkgoT().TempDir(), "rates.yml")
			Expect(os.WriteFile(path, []byte("rates:\n  USD:\n    EUR: \"0\"\n"), 0o600)).To(Succeed())

			_, err := conversion.LoadRateTable(path)
			Expect(err).To(HaveOccurred())
		})

		It("lists the default pairs", func() {
			Expect(conversion.DefaultRates().Pairs()).To(HaveLen(6))
		})
	})

	Describe("HTTPProvider", func() {
		var server *httptest.Server

		AfterEach(func() {
			if server != nil {
				server.Close()
			}
		})

		It("reads the rate of one unit", func() {
			var path string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"from":"GBP","to":"EUR","rate":1.14,"original_amount":1,"converted_amount":1.14}`))
			}))

			rate, err := conversion.NewHTTPProvider(server.URL, time.Second).Rate(ctx, "GBP", "EUR")
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.String()).To(Equal("1.14"))
			Expect(path).To(Equal("/conversion/GBP/EUR/1"))
		})

		It("maps 404 to UnsupportedPair", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))

			_, err := conversion.NewHTTPProvider(server.URL, time.Second).Rate(ctx, "GBP", "JPY")
			Expect(errors.Is(err, apperrors.ErrUnsupportedPair)).To(BeTrue())
		})

		It("maps server errors to ConversionUnavailable", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}))

			_, err := conversion.NewHTTPProvider(server.URL, time.Second).Rate(ctx, "GBP", "USD")
			Expect(errors.Is(err, apperrors.ErrConversionUnavailable)).To(BeTrue())
		})

		It("times out slow endpoints", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))

			_, err := conversion.NewHTTPProvider(server.URL, 20*time.Millisecond).Rate(ctx, "GBP", "USD")
			Expect(errors.Is(err, apperrors.ErrConversionUnavailable)).To(BeTrue())
		})
	})

	Describe("CachedProvider", func() {
		It("serves repeated lookups from the cache", func() {
			// Given
			cache := &memoryCache{values: map[string]string{}}
			backend := &countingProvider{rate: decimal.RequireFromString("0.88")}
			provider := conversion.NewCachedProvider(backend, cache, time.Minute, discardLogger)

			// When
			first, err := provider.Rate(ctx, "EUR", "GBP")
			Expect(err).ToNot(HaveOccurred())
			second, err := provider.Rate(ctx, "EUR", "GBP")
			Expect(err).ToNot(HaveOccurred())

			// Then
			Expect(first.Equal(second)).To(BeTrue())
			Expect(backend.calls).To(Equal(1))
			Expect(cache.sets).To(Equal(1))
		})

		It("does not cache unsupported pairs", func() {
			cache := &memoryCache{values: map[string]string{}}
			provider := conversion.NewCachedProvider(conversion.NewStaticProvider(conversion.DefaultRates()), cache, time.Minute, discardLogger)

			_, err := provider.Rate(ctx, "GBP", "JPY")
			Expect(errors.Is(err, apperrors.ErrUnsupportedPair)).To(BeTrue())
			Expect(cache.sets).To(Equal(0))
		})

		It("falls through when redis is unreachable", func() {
			// Given
			client := redis.NewClient(&redis.Options{
				Addr:        "127.0.0.1:1",
				DialTimeout: 50 * time.Millisecond,
				MaxRetries:  -1,
			})
			DeferCleanup(client.Close)
			provider := conversion.NewCachedProvider(
				conversion.NewStaticProvider(conversion.DefaultRates()),
				conversion.NewRedisRateCache(client),
				time.Minute,
				discardLogger,
			)

			// When
			rate, err := provider.Rate(ctx, "GBP", "USD")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.String()).To(Equal("1.33"))
		})
	})
})
