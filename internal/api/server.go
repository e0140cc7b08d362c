package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"botvac-bridge/internal/command"
	"botvac-bridge/internal/models"
	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dispatcher runs bridge requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Result
}

// HistoryReader lists recorded requests of a robot, newest first.
type HistoryReader interface {
	Recent(ctx context.Context, serial string, limit int) ([]models.CommandLog, error)
}

// Server is the REST front of the bridge.
type Server struct {
	echo       *echo.Echo
	dispatcher Dispatcher
	store      registry.Store
	history    HistoryReader
	timeout    time.Duration
}

// NewServer wires the REST routes onto a new echo instance.
func NewServer(dispatcher Dispatcher, store registry.Store, history HistoryReader, timeout time.Duration) *Server {
	s := &Server{
		echo:       echo.New(),
		dispatcher: dispatcher,
		store:      store,
		history:    history,
		timeout:    timeout,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = HTTPErrorHandler
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(requestLogger)
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/robots", s.listRobots)

	r := v1.Group("/robots/:serial", s.knownRobot)
	r.GET("/state", s.getState)
	r.PUT("/clean", s.startCleaning)
	r.POST("/spot", s.startSpotCleaning)
	r.POST("/base", s.sendToBase)
	r.GET("/schedule", s.getSchedule)
	r.PUT("/schedule", s.setSchedule)
	r.POST("/actions/:action", s.runAction)
	r.GET("/history", s.getHistory)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	utils.Logger.Infof("🌐 API listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// knownRobot answers 404 for serials missing from the identity store.
func (s *Server) knownRobot(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		serial := c.Param("serial")
		if _, err := s.store.Get(c.Request().Context(), serial); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return NewNotFoundError("Unknown robot " + serial)
			}
			return NewInternalServerError("Failed to look up robot", err)
		}
		return next(c)
	}
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		utils.Logger.WithField("status", c.Response().Status).
			Debugf("%s %s %s %v", req.Method, req.RequestURI, req.RemoteAddr, time.Since(start))
		return err
	}
}
