package webserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/talkincode/toughpos/internal/app"
	"go.uber.org/zap"
)

const (
	apiPrefix = "/api/v1"

	// ContextKeyApp holds the AppContext in every request
	ContextKeyApp = "appctx"
	// ContextKeyOperator holds the operator id taken from the X-Operator-Id header
	ContextKeyOperator = "operator_id"

	HeaderOperator = "X-Operator-Id"

	// HeaderIdempotencyKey carries the checkout key of a saved draft
	HeaderIdempotencyKey = "Idempotency-Key"
)

type route struct {
	method      string
	path        string
	handler     echo.HandlerFunc
	middlewares []echo.MiddlewareFunc
}

var apiRoutes []route

func addRoute(method, path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	apiRoutes = append(apiRoutes, route{method: method, path: path, handler: h, middlewares: m})
}

func ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodGet, path, h, m...)
}

func ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodPost, path, h, m...)
}

func ApiPUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodPut, path, h, m...)
}

func ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodDelete, path, h, m...)
}

// ResetRoutes clears the registry, tests register handlers per server
func ResetRoutes() {
	apiRoutes = nil
}

// CustomValidator adapts validator/v10 to echo
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type AdminServer struct {
	root   *echo.Echo
	appCtx app.AppContext
}

// NewAdminServer builds the echo instance and mounts every registered api route
func NewAdminServer(appCtx app.AppContext) *AdminServer {
	s := &AdminServer{root: echo.New(), appCtx: appCtx}
	e := s.root
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	if appCtx.Config().System.Debug {
		e.Logger.SetLevel(log.DEBUG)
		e.Debug = true
	} else {
		e.Logger.SetLevel(log.INFO)
	}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderOperator, HeaderIdempotencyKey},
		ExposeHeaders: []string{HeaderIdempotencyKey, echo.HeaderContentDisposition},
	}))
	e.Use(s.requestLogger)

	g := e.Group(apiPrefix, s.bindContext)
	for _, r := range apiRoutes {
		g.Add(r.method, r.path, r.handler, r.middlewares...)
	}
	return s
}

func (s *AdminServer) Echo() *echo.Echo {
	return s.root
}

// bindContext exposes the application and the calling operator to handlers
func (s *AdminServer) bindContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(ContextKeyApp, s.appCtx)
		if v := strings.TrimSpace(c.Request().Header.Get(HeaderOperator)); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				c.Set(ContextKeyOperator, id)
			}
		}
		return next(c)
	}
}

func (s *AdminServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req, res := c.Request(), c.Response()
		zap.L().Debug("http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", res.Status),
			zap.Duration("latency", time.Since(start)),
			zap.String("namespace", "webserver"))
		return nil
	}
}

// Start listens until the server is shut down
func (s *AdminServer) Start() error {
	cfg := s.appCtx.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.L().Info("admin api listening", zap.String("addr", addr), zap.String("namespace", "webserver"))
	err := s.root.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}
