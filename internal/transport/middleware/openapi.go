package middleware

import (
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/payapp/internal"
)

// LoadOpenAPI parses and validates an OpenAPI document. Servers are dropped
// so routes match on the path below the API prefix.
func LoadOpenAPI(data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, err
	}
	doc.Servers = nil
	return doc, nil
}

type OpenAPIValidator struct {
	router routers.Router
	prefix string
	logger *slog.Logger
}

func NewOpenAPIValidator(doc *openapi3.T, prefix string, logger *slog.Logger) (*OpenAPIValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{router: router, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}, nil
}

// Middleware rejects requests whose parameters or body do not match the
// documented operation. Routes the document does not describe pass through.
func (v *OpenAPIValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, v.prefix)
		if path == r.URL.Path && v.prefix != "" {
			next.ServeHTTP(w, r)
			return
		}
		if path == "" {
			path = "/"
		}

		probe := r.Clone(r.Context())
		probe.URL.Path = path
		probe.URL.RawPath = ""

		route, params, err := v.router.FindRoute(probe)
		if err != nil {
			var routeErr *routers.RouteError
			if !goerrors.As(err, &routeErr) {
				v.logger.Warn("openapi route lookup failed", "error", err, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    probe,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			logger := v.logger
			if id := TraceID(r.Context()); id != "" {
				logger = logger.With("traceID", id)
			}
			logger.Info("request rejected by schema", "path", r.URL.Path, "method", r.Method, "error", err)
			writeAppError(w, internal.NewValidationError(validationMessage(err), internal.ErrCodeValidationFailed))
			return
		}

		// the validator consumed and restored the clone's body
		r.Body = probe.Body
		next.ServeHTTP(w, r)
	})
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if goerrors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return "invalid parameter " + reqErr.Parameter.Name
		}
		if reqErr.RequestBody != nil {
			var schemaErr *openapi3.SchemaError
			if goerrors.As(reqErr.Err, &schemaErr) && len(schemaErr.JSONPointer()) > 0 {
				return "invalid request body: " + strings.Join(schemaErr.JSONPointer(), ".")
			}
			return "invalid request body"
		}
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
	}
	return "request does not match the API schema"
}
