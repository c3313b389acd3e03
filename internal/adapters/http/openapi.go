package httpadapter

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed api/openapi.yaml
var openAPISpec []byte

// requestValidator checks requests against the embedded OpenAPI document before
// they reach a handler.
type requestValidator struct {
	doc *openapi3.T
}

func loadValidator() (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &requestValidator{doc: doc}, nil
}

func mustLoadValidator() *requestValidator {
	v, err := loadValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func (v *requestValidator) wrap(method, path string, next http.HandlerFunc) http.Handler {
	pathItem := v.doc.Paths.Value(path)
	if pathItem == nil || pathItem.GetOperation(method) == nil {
		panic(fmt.Sprintf("openapi document has no operation %s %s", method, path))
	}
	route := &routers.Route{
		Spec:      v.doc,
		Path:      path,
		PathItem:  pathItem,
		Method:    method,
		Operation: pathItem.GetOperation(method),
	}
	params := pathParamNames(path)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathParams := make(map[string]string, len(params))
		for _, name := range params {
			pathParams[name] = r.PathValue(name)
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				MultiError:         false,
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		next(w, r)
	})
}

func pathParamNames(path string) []string {
	var names []string
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			names = append(names, strings.Trim(segment, "{}"))
		}
	}
	return names
}

func validationMessage(err error) string {
	switch e := err.(type) {
	case *openapi3filter.RequestError:
		if e.Reason != "" {
			return "invalid request: " + e.Reason
		}
		return "invalid request: " + e.Error()
	default:
		return "invalid request: " + err.Error()
	}
}
