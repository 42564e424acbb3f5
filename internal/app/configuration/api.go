package configuration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

type CreateMockServerRequest struct {
	Pact json.RawMessage `json:"pact"`
	Host string          `json:"host"`
	Port int             `json:"port"`
}

type CreateMockServerResponse struct {
	Port int `json:"port"`
}

type MatchedResponse struct {
	Matched bool `json:"matched"`
}

type WritePactRequest struct {
	Dir       string `json:"dir"`
	Overwrite bool   `json:"overwrite"`
}

type WritePactResponse struct {
	Path string `json:"path"`
}

type api struct {
	config  Config
	manager *mockserver.Manager
}

// NewAdminAPI routes the admin endpoints to the manager.
func NewAdminAPI(config Config, manager *mockserver.Manager, m *metrics.Metrics) *echo.Echo {
	a := &api{config: config, manager: manager}

	adminServer := echo.New()
	adminServer.HideBanner = true

	adminServer.GET("/ready", a.readinessHandler)
	if m != nil {
		adminServer.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	adminServer.POST("/mock-servers", a.postMockServerHandler)
	adminServer.GET("/mock-servers", a.listMockServersHandler)
	adminServer.DELETE("/mock-servers", a.deleteMockServersHandler)
	adminServer.DELETE("/mock-servers/:port", a.deleteMockServerHandler)
	adminServer.GET("/mock-servers/:port/matched", a.matchedHandler)
	adminServer.GET("/mock-servers/:port/mismatches", a.mismatchesHandler)
	adminServer.GET("/mock-servers/:port/requests", a.requestsHandler)
	adminServer.GET("/mock-servers/:port/wait", a.waitHandler)
	adminServer.POST("/mock-servers/:port/pact", a.writePactHandler)

	return adminServer
}

// ServeAdminAPI starts the admin API on the configured port.
func ServeAdminAPI(config Config, manager *mockserver.Manager, m *metrics.Metrics) *echo.Echo {
	adminServer := NewAdminAPI(config, manager, m)

	go func() {
		address := fmt.Sprintf(":%d", config.AdminPort)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func (a *api) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a *api) postMockServerHandler(c echo.Context) error {
	var request CreateMockServerRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse mock server request. %s", err.Error()))
	}
	if len(request.Pact) == 0 {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("mock server request has no pact"))
	}

	doc, err := pact.UnmarshalDocument(request.Pact)
	if err != nil {
		return errorResponse(c, errors.Wrap(err, "unable to load pact"))
	}

	host := request.Host
	if host == "" {
		host = a.config.MockHost
	}
	port, err := a.manager.Create(doc, host, request.Port, a.config.MockOptions())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, CreateMockServerResponse{Port: port})
}

func (a *api) listMockServersHandler(c echo.Context) error {
	servers := a.manager.Servers()
	summaries := make([]mockserver.Summary, 0, len(servers))
	for _, s := range servers {
		summaries = append(summaries, s.Summary())
	}
	return c.JSON(http.StatusOK, summaries)
}

func (a *api) deleteMockServersHandler(c echo.Context) error {
	log.Info("stopping all mock servers")
	if err := a.manager.CleanupAll(c.Request().Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) deleteMockServerHandler(c echo.Context) error {
	port, err := portParam(c)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := a.manager.Cleanup(c.Request().Context(), port); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) matchedHandler(c echo.Context) error {
	s, err := a.server(c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, MatchedResponse{Matched: s.MatchedSuccessfully()})
}

func (a *api) mismatchesHandler(c echo.Context) error {
	s, err := a.server(c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s.Mismatches())
}

func (a *api) requestsHandler(c echo.Context) error {
	s, err := a.server(c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s.Requests())
}

func (a *api) waitHandler(c echo.Context) error {
	s, err := a.server(c)
	if err != nil {
		return errorResponse(c, err)
	}

	count, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil {
		count = 1
	}
	if err := s.WaitForInteractions(c.QueryParam("interaction"), count); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) writePactHandler(c echo.Context) error {
	port, err := portParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	var request WritePactRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse pact request. %s", err.Error()))
	}
	if request.Dir == "" {
		request.Dir = a.config.PactDir
	}

	path, err := a.manager.WritePactFile(port, request.Dir, request.Overwrite)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, WritePactResponse{Path: path})
}

func (a *api) server(c echo.Context) (*mockserver.Server, error) {
	port, err := portParam(c)
	if err != nil {
		return nil, err
	}
	return a.manager.Get(port)
}

func portParam(c echo.Context) (int, error) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		return 0, pacterror.Configurationf("invalid port %q", c.Param("port"))
	}
	return port, nil
}

func errorResponse(c echo.Context, err error) error {
	return c.JSON(statusFor(err), httpresponse.Error(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pacterror.ErrConfiguration), errors.Is(err, pacterror.ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, pacterror.ErrUnknownMockServer):
		return http.StatusNotFound
	case errors.Is(err, pacterror.ErrMockServerBind):
		return http.StatusConflict
	case errors.Is(err, pacterror.ErrInteractionsTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
