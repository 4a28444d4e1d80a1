package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/VladKvetkin/keyflow/internal/services/jwttoken"
)

func TestAuth(t *testing.T) {
	tokens := jwttoken.NewManager("secret", time.Hour)

	token, err := tokens.Generate(100)
	if err != nil {
		t.Fatal(err)
	}

	handler := Auth(tokens)(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		userID, ok := UserID(req.Context())
		if !ok || userID != 100 {
			t.Errorf("user id = %d, %v", userID, ok)
		}

		resp.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		prepare func(*http.Request)
		want    int
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token}) }, http.StatusNoContent},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
		tt.prepare(req)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestDecompressBodyReader(t *testing.T) {
	var buf bytes.Buffer

	writer := gzip.NewWriter(&buf)
	writer.Write([]byte(`{"text":"hi"}`))
	writer.Close()

	handler := DecompressBodyReader(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if string(body) != `{"text":"hi"}` {
			t.Errorf("body = %q", body)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Encoding", "gzip")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	broken := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("plain"))
	broken.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	DecompressBodyReader(http.NotFoundHandler()).ServeHTTP(rec, broken)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken gzip status = %d, want 400", rec.Code)
	}
}
