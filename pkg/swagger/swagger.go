// Package swagger serves the offramp OpenAPI document with Swagger UI and
// Redoc viewers.
package swagger

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
)

//go:embed openapi/*.yaml
var specs embed.FS

// DefaultSpec is the offramp-service OpenAPI document shipped with the binary.
const DefaultSpec = "offramp.yaml"

// Config holds Swagger UI configuration.
//
//	app.Use("/docs", swagger.Handler(swagger.Config{Title: "Offramp API"}))
type Config struct {
	// SpecURL points at an externally hosted spec. When empty the embedded
	// spec is served under BasePath/spec/.
	SpecURL string

	// SpecFS overrides the embedded specs; SpecFile is looked up in it.
	SpecFS   fs.FS
	SpecFile string

	Title    string
	BasePath string
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = "API Documentation"
	}
	if c.BasePath == "" {
		c.BasePath = "/docs"
	}
	if c.SpecFS == nil {
		c.SpecFS, _ = fs.Sub(specs, "openapi")
	}
	if c.SpecFile == "" {
		c.SpecFile = DefaultSpec
	}
	if c.SpecURL == "" {
		c.SpecURL = c.BasePath + "/spec/" + c.SpecFile
	}
	return c
}

var pages = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>body { margin: 0; } .swagger-ui .topbar { display: none; }</style>
</head>
<body>
  <div id="swagger-ui" data-spec="{{.SpecURL}}"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function () {
      var el = document.getElementById("swagger-ui");
      SwaggerUIBundle({
        url: el.dataset.spec,
        domNode: el,
        deepLinking: true,
        persistAuthorization: true,
        displayRequestDuration: true
      });
    };
  </script>
</body>
</html>
{{define "redoc"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>body { margin: 0; }</style>
</head>
<body>
  <redoc spec-url="{{.SpecURL}}"></redoc>
  <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>
{{end}}`))

// Handler serves Swagger UI at BasePath, Redoc at BasePath/redoc and the
// raw spec files at BasePath/spec/<file>.
func Handler(config Config) fiber.Handler {
	cfg := config.withDefaults()
	specPrefix := cfg.BasePath + "/spec/"

	swaggerPage := render(pages, cfg)
	redocPage := render(pages.Lookup("redoc"), cfg)

	return func(c *fiber.Ctx) error {
		p := strings.TrimSuffix(c.Path(), "/")

		if name, ok := strings.CutPrefix(p, specPrefix); ok {
			return serveSpec(c, cfg.SpecFS, name)
		}
		switch p {
		case cfg.BasePath:
			return sendHTML(c, swaggerPage)
		case cfg.BasePath + "/redoc":
			return sendHTML(c, redocPage)
		}
		return c.Next()
	}
}

func render(t *template.Template, cfg Config) []byte {
	var buf bytes.Buffer
	if err := t.Execute(&buf, cfg); err != nil {
		panic("swagger: " + err.Error())
	}
	return buf.Bytes()
}

func sendHTML(c *fiber.Ctx, page []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}

var specTypes = map[string]string{
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".json": fiber.MIMEApplicationJSON,
}

func serveSpec(c *fiber.Ctx, fsys fs.FS, name string) error {
	name = path.Clean(name)
	if !fs.ValidPath(name) {
		return fiber.ErrNotFound
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fiber.ErrNotFound
	}
	if ct, ok := specTypes[path.Ext(name)]; ok {
		c.Set(fiber.HeaderContentType, ct)
	}
	return c.Send(data)
}
