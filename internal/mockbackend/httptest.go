package mockbackend

import (
	"net/http/httptest"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const BasePath = "/v1/offramps"

// NewHTTPServer serves s on a local listener. The backend base URL is
// srv.URL + BasePath.
func NewHTTPServer(s *Server) *httptest.Server {
	return httptest.NewServer(adaptor.FiberApp(s.App(BasePath)))
}
