package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"botvac-bridge/internal/command"
	"botvac-bridge/internal/robot"

	"github.com/labstack/echo/v4"
)

// RobotView is a stored identity without its secret.
type RobotView struct {
	Serial            string   `json:"serial"`
	Name              string   `json:"name"`
	Traits            []string `json:"traits"`
	Vendor            string   `json:"vendor,omitempty"`
	HasPersistentMaps bool     `json:"has_persistent_maps"`
}

func (s *Server) listRobots(c echo.Context) error {
	ids, err := s.store.List(c.Request().Context())
	if err != nil {
		return NewInternalServerError("Failed to list robots", err)
	}
	views := make([]RobotView, len(ids))
	for i, id := range ids {
		views[i] = RobotView{
			Serial:            id.Serial,
			Name:              id.Name,
			Traits:            id.Traits,
			Vendor:            id.Vendor,
			HasPersistentMaps: id.HasPersistentMaps,
		}
	}
	return c.JSON(http.StatusOK, SuccessResponse("Robots retrieved successfully", ListResponse{Items: views, Count: len(views)}))
}

func (s *Server) getState(c echo.Context) error {
	return s.dispatch(c, command.ActionState, nil)
}

// startCleaning takes a robot.CleaningRequest body; an empty body uses the
// robot's preferred run.
func (s *Server) startCleaning(c echo.Context) error {
	var req robot.CleaningRequest
	if err := bindOptional(c, &req); err != nil {
		return NewBadRequestError("Invalid request body: "+err.Error(), err)
	}
	return s.dispatch(c, command.ActionStart, nonZero(req, robot.CleaningRequest{}))
}

func (s *Server) startSpotCleaning(c echo.Context) error {
	var req robot.SpotRequest
	if err := bindOptional(c, &req); err != nil {
		return NewBadRequestError("Invalid request body: "+err.Error(), err)
	}
	return s.dispatch(c, command.ActionSpot, nonZero(req, robot.SpotRequest{}))
}

func (s *Server) sendToBase(c echo.Context) error {
	return s.dispatch(c, command.ActionDock, nil)
}

func (s *Server) getSchedule(c echo.Context) error {
	return s.dispatch(c, command.ActionScheduleStatus, nil)
}

type scheduleBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setSchedule(c echo.Context) error {
	var body scheduleBody
	if err := bindOptional(c, &body); err != nil || body.Enabled == nil {
		return NewBadRequestError(`Body must be {"enabled": true|false}`, err)
	}
	action := command.ActionScheduleDisable
	if *body.Enabled {
		action = command.ActionScheduleEnable
	}
	return s.dispatch(c, action, nil)
}

// runAction passes the raw body through as action params.
func (s *Server) runAction(c echo.Context) error {
	action := command.Action(c.Param("action"))
	if !command.IsValidAction(action) {
		return NewBadRequestError("Unknown action " + string(action))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("Failed to read request body", err)
	}
	var params json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			return NewBadRequestError("Params must be JSON")
		}
		params = body
	}
	return s.dispatchRaw(c, action, params)
}

func (s *Server) getHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := s.history.Recent(c.Request().Context(), c.Param("serial"), limit)
	if err != nil {
		return NewInternalServerError("Failed to read history", err)
	}
	return c.JSON(http.StatusOK, SuccessResponse("History retrieved successfully", ListResponse{Items: logs, Count: len(logs)}))
}

func (s *Server) dispatch(c echo.Context, action command.Action, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return NewInternalServerError("Failed to encode params", err)
		}
		raw = b
	}
	return s.dispatchRaw(c, action, raw)
}

func (s *Server) dispatchRaw(c echo.Context, action command.Action, params json.RawMessage) error {
	ctx := c.Request().Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := s.dispatcher.Dispatch(ctx, command.Request{
		ID:     c.Request().Header.Get(echo.HeaderXRequestID),
		Serial: c.Param("serial"),
		Action: action,
		Params: params,
		Source: command.SourceAPI,
	})

	switch res.Status {
	case command.StateSucceeded:
		return c.JSON(http.StatusOK, SuccessResponse("Command succeeded", res))
	case command.StateRejected:
		return c.JSON(http.StatusConflict, StandardResponse{Status: "error", Message: "Command rejected by robot", Data: res})
	default:
		return c.JSON(http.StatusBadGateway, StandardResponse{Status: "error", Message: res.Error, Data: res})
	}
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c echo.Context, v interface{}) error {
	req := c.Request()
	if req.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// nonZero drops empty requests so the dispatcher applies its defaults.
func nonZero[T comparable](v, zero T) interface{} {
	if v == zero {
		return nil
	}
	return v
}
