package paymentrequest_test

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	prDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
)

type memoryTelemetryStore struct {
	mu          sync.Mutex
	views       []*prDatamodel.PaymentView
	conversions []*prDatamodel.PaymentConversion
	block       chan struct{}
}

func (s *memoryTelemetryStore) RecordView(ctx context.Context, v *prDatamodel.PaymentView) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
	return nil
}

func (s *memoryTelemetryStore) RecordConversion(ctx context.Context, c *prDatamodel.PaymentConversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversions = append(s.conversions, c)
	return nil
}

func (s *memoryTelemetryStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views), len(s.conversions)
}

var _ = Describe("Recorder", func() {
	It("persists views and conversions in the background", func() {
		// Given
		store := &memoryTelemetryStore{}
		recorder := paymentrequest.NewRecorder(store, 16, discardLogger)
		recorder.Start(context.Background())
		defer recorder.Stop()

		// When
		recorder.View(7, paymentrequest.ViewMeta{Method: "GET", IP: "10.0.0.1", UserAgent: "curl"})
		recorder.Conversion(7, "checkout")

		// Then
		Eventually(func() []int {
			v, c := store.counts()
			return []int{v, c}
		}).Should(Equal([]int{1, 1}))
		Expect(store.views[0].PaymentRequestID).To(Equal(int64(7)))
		Expect(store.views[0].IPAddress).To(Equal("10.0.0.1"))
	})

	It("shortens long headers on a character boundary", func() {
		// Given
		store := &memoryTelemetryStore{}
		recorder := paymentrequest.NewRecorder(store, 4, discardLogger)
		recorder.Start(context.Background())
		defer recorder.Stop()
		agent := strings.Repeat("a", 511) + "é"

		// When
		recorder.View(3, paymentrequest.ViewMeta{Method: "GET", UserAgent: agent, Referer: "https://example.com/" + strings.Repeat("ü", 300)})

		// Then
		Eventually(func() int {
			v, _ := store.counts()
			return v
		}).Should(Equal(1))
		Expect(store.views[0].UserAgent).To(Equal(strings.Repeat("a", 511)))
		Expect(utf8.ValidString(store.views[0].UserAgent)).To(BeTrue())
		Expect(utf8.ValidString(store.views[0].Referer)).To(BeTrue())
		Expect(len(store.views[0].Referer)).To(BeNumerically("<=", 512))
	})

	It("drops events instead of blocking when the buffer is full", func() {
		// Given
		store := &memoryTelemetryStore{block: make(chan struct{})}
		recorder := paymentrequest.NewRecorder(store, 1, discardLogger)
		recorder.Start(context.Background())

		// When
		done := make(chan struct{})
		go func() {
			for i := 0; i < 50; i++ {
				recorder.View(1, paymentrequest.ViewMeta{})
			}
			close(done)
		}()

		// Then
		Eventually(done, time.Second).Should(BeClosed())
		close(store.block)
		recorder.Stop()
		views, _ := store.counts()
		Expect(views).To(BeNumerically("<", 50))
		Expect(views).To(BeNumerically(">=", 1))
	})

	It("flushes buffered events on stop", func() {
		store := &memoryTelemetryStore{}
		recorder := paymentrequest.NewRecorder(store, 8, discardLogger)
		for i := 0; i < 3; i++ {
			recorder.Conversion(1, "checkout")
		}

		recorder.Start(context.Background())
		recorder.Stop()

		_, conversions := store.counts()
		Expect(conversions).To(Equal(3))
	})
})

var _ = Describe("RandomShortCode", func() {
	It("encodes the requested number of bytes URL-safe", func() {
		code, err := paymentrequest.RandomShortCode(9)()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(HaveLen(12))
		Expect(code).NotTo(ContainSubstring("="))
	})
})
