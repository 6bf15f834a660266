package transport_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/transport"
)

func TestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transport Suite")
}

type envelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(rec *httptest.ResponseRecorder) envelope {
	var env envelope
	Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
	return env
}

var _ = Describe("BaseHandler", func() {
	var h *transport.BaseHandler

	BeforeEach(func() {
		h = transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	Describe("HandleServiceError", func() {
		It("uses the status and code of wrapped app errors", func() {
			rec := httptest.NewRecorder()

			h.HandleServiceError(rec, fmt.Errorf("transfer: %w", apperrors.ErrInsufficientFunds))

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			env := decodeEnvelope(rec)
			Expect(env.Error.Code).To(Equal("INSUFFICIENT_FUNDS"))
			Expect(env.Error.Type).To(Equal("UNPROCESSABLE"))
		})

		It("reports unknown errors as internal without details", func() {
			rec := httptest.NewRecorder()

			h.HandleServiceError(rec, errors.New("pq: relation does not exist"))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).NotTo(ContainSubstring("relation"))
			Expect(decodeEnvelope(rec).Error.Code).To(Equal("INTERNAL_ERROR"))
		})
	})

	It("derives the error code from the status", func() {
		rec := httptest.NewRecorder()

		h.WriteError(rec, http.StatusNotFound, "no such route")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		env := decodeEnvelope(rec)
		Expect(env.Error.Code).To(Equal("NOT_FOUND"))
		Expect(env.Error.Type).To(Equal("NOT_FOUND"))
		Expect(env.Error.Message).To(Equal("no such route"))
	})

	Describe("DecodeJSON", func() {
		type payload struct {
			Amount string `json:"amount"`
		}

		It("decodes known fields", func() {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.00"}`))
			var p payload

			Expect(h.DecodeJSON(httptest.NewRecorder(), req, &p)).To(Succeed())
			Expect(p.Amount).To(Equal("10.00"))
		})

		It("rejects unknown fields", func() {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.00","admin":true}`))
			var p payload

			Expect(h.DecodeJSON(httptest.NewRecorder(), req, &p)).NotTo(Succeed())
		})
	})

	DescribeTable("ExtractTokenFromHeader",
		func(header, expected string) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			Expect(h.ExtractTokenFromHeader(req)).To(Equal(expected))
		},
		Entry("bearer token", "Bearer abc.def", "abc.def"),
		Entry("missing header", "", ""),
		Entry("other scheme", "Basic dXNlcg==", ""),
	)

	DescribeTable("Pagination",
		func(query string, limit, offset int) {
			req := httptest.NewRequest(http.MethodGet, "/transfers"+query, nil)
			l, o := h.Pagination(req)
			Expect(l).To(Equal(limit))
			Expect(o).To(Equal(offset))
		},
		Entry("defaults", "", 20, 0),
		Entry("explicit values", "?limit=50&offset=10", 50, 10),
		Entry("limit above the cap", "?limit=500", 20, 0),
		Entry("negative offset", "?offset=-3", 20, 0),
		Entry("garbage", "?limit=abc&offset=xyz", 20, 0),
	)
})
