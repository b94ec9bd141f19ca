package swagger

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gofiber/fiber/v2"
)

func newApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use("/docs", Handler(cfg))
	app.Get("/other", func(c *fiber.Ctx) error { return c.SendString("other") })
	return app
}

func TestHandler(t *testing.T) {
	app := newApp(Config{Title: "Offramp API"})

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"swagger ui", "/docs", 200, "text/html", "swagger-ui"},
		{"trailing slash", "/docs/", 200, "text/html", "Offramp API"},
		{"redoc", "/docs/redoc", 200, "text/html", "redoc"},
		{"embedded spec", "/docs/spec/offramp.yaml", 200, "application/x-yaml", "openapi:"},
		{"missing spec", "/docs/spec/missing.yaml", 404, "", ""},
		{"escape attempt", "/docs/spec/../swagger.go", 404, "", ""},
		{"unrelated route", "/other", 200, "", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.contentType != "" && !strings.HasPrefix(resp.Header.Get("Content-Type"), tt.contentType) {
				t.Errorf("content-type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
			body, _ := io.ReadAll(resp.Body)
			if tt.contains != "" && !strings.Contains(string(body), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
		})
	}
}

func TestHandler_CustomSpec(t *testing.T) {
	fsys := fstest.MapFS{
		"custom.json": &fstest.MapFile{Data: []byte(`{"openapi":"3.0.3"}`)},
	}
	app := newApp(Config{SpecFS: fsys, SpecFile: "custom.json"})

	resp, err := app.Test(httptest.NewRequest("GET", "/docs", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "/docs/spec/custom.json") {
		t.Error("swagger ui should point at the custom spec file")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/docs/spec/custom.json", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != fiber.MIMEApplicationJSON {
		t.Errorf("content-type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestHandler_EscapesTitle(t *testing.T) {
	app := newApp(Config{Title: "<script>x</script>"})

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/redoc", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "<script>x</script>") {
		t.Error("title must be HTML-escaped")
	}
	if !strings.Contains(string(body), `spec-url="/docs/spec/offramp.yaml"`) {
		t.Errorf("redoc page does not reference the embedded spec:\n%s", body)
	}
}
