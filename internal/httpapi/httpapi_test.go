package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/types"
)

type recordingProcessor struct {
	query string
	creds types.Credentials
	ctx   context.Context
	res   types.Result
}

func (p *recordingProcessor) ProcessQuery(ctx context.Context, query string, creds types.Credentials) types.Result {
	p.ctx, p.query, p.creds = ctx, query, creds
	return p.res
}

func init() {
	gin.SetMode(gin.TestMode)
}

func post(t *testing.T, h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func TestQuerySuccess(t *testing.T) {
	p := &recordingProcessor{res: types.Success("inv-1", types.StructuredAnswer{
		DirectAnswer: "Yes", Reasoning: "r", Citations: "[1] a - b", Confidence: "High", State: types.WellFormed,
	})}
	h := NewHandler(p, time.Minute)

	w := post(t, h, `{"query":"Has AMZN broken out?","groq_api_key":"g","serpapi_key":"s"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Has AMZN broken out?", p.query)
	assert.Equal(t, types.Credentials{GroqAPIKey: "g", SerpAPIKey: "s"}, p.creds)
	_, hasDeadline := p.ctx.Deadline()
	assert.True(t, hasDeadline)

	var got types.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, types.ResultSuccess, got.Kind)
	assert.Equal(t, "High", got.Answer.Confidence)
}

func TestQueryKeysFromHeaders(t *testing.T) {
	p := &recordingProcessor{res: types.Success("inv", types.StructuredAnswer{})}
	w := post(t, NewHandler(p, 0), `{"query":"q"}`, map[string]string{HeaderGroqKey: "hg", HeaderSerpKey: "hs"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.Credentials{GroqAPIKey: "hg", SerpAPIKey: "hs"}, p.creds)
}

func TestQueryBadBody(t *testing.T) {
	p := &recordingProcessor{}
	w := post(t, NewHandler(p, 0), `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, p.ctx)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.CredentialError("validate", errors.New("missing")), http.StatusUnauthorized},
		{types.InputError("validate", types.ErrEmptyQuery), http.StatusBadRequest},
		{types.RetrievalError("search", errors.New("down")), http.StatusBadGateway},
		{types.SynthesisError("complete", errors.New("down")), http.StatusBadGateway},
		{types.RetrievalError("search", context.Canceled), statusClientClosed},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(types.FailureResult("x", tc.err)), tc.err.Error())
	}
	assert.Equal(t, http.StatusOK, StatusFor(types.Success("x", types.StructuredAnswer{})))
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewHandler(&recordingProcessor{}, 0).Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
