package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type routeHandler struct {
	path string
}

func (h routeHandler) Register(e *echo.Echo) {
	e.GET(h.path, func(c echo.Context) error { return c.String(http.StatusOK, h.path) })
}

type panicHandler struct{}

func (panicHandler) Register(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("boom") })
}

func TestNewServerRegistersHandlers(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log, "", routeHandler{path: "/a"}, nil, routeHandler{path: "/b"}, panicHandler{})
	if srv.Addr() != ":8080" {
		t.Fatalf("unexpected default addr %q", srv.Addr())
	}

	cases := []struct {
		path string
		want int
	}{
		{path: "/a", want: http.StatusOK},
		{path: "/b", want: http.StatusOK},
		{path: "/missing", want: http.StatusNotFound},
		{path: "/boom", want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("path=%q want=%d got=%d", tc.path, tc.want, rec.Code)
		}
	}
}
