package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/rules"
)

func newRequest(t *testing.T) *Request {
	t.Helper()
	rs, err := rules.NewRuleset(grammar.Builtin(), rules.MatcherEngine)
	require.NoError(t, err)
	return &Request{Ruleset: rs}
}

func TestProcessData(t *testing.T) {
	handler := newRequest(t).Handler()

	tests := []struct {
		name   string
		method string
		body   string
		status int
		want   string
	}{
		{"rewrite", http.MethodPost, "bad\n\ncaN\n", http.StatusOK,
			`[{"input":"bad","output":"bat","steps":[{"rule":"final-devoicing","output":"bat"}]},
			  {"input":"caN","output":"can","steps":[{"rule":"nasal-default","output":"can"}]}]`},
		{"unchanged", http.MethodPost, "carp", http.StatusOK, `[{"input":"carp","output":"carp"}]`},
		{"unknown character", http.MethodPost, "caB", http.StatusUnprocessableEntity, ""},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body)))
			require.Equal(t, tt.status, rec.Code)
			if tt.want != "" {
				require.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRules(t *testing.T) {
	handler := newRequest(t).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `{"name":"h-deletion","notation":"h -> 0 / _ #"}`)
}
