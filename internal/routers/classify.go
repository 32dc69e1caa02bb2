// Package routers
package routers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"landuse-api/internal/buckets"
	"landuse-api/internal/classifier"
	"landuse-api/internal/ctx"
	"landuse-api/internal/database"
	"landuse-api/internal/labels"
	"landuse-api/internal/shared"
)

// ClassifyService is the part of the classifier the routes call.
type ClassifyService interface {
	Classify(ctx context.Context, imageBytes []byte) (string, error)
	Labels() []string
}

// ClassifyRequest carries one base64-encoded still image.
type ClassifyRequest struct {
	Data string `json:"data"`
}

type LabelList struct {
	Data []string `json:"data"`
}

type ClassifyRouter struct {
	svc   ClassifyService
	stats *buckets.StatsCache
}

func RegisterClassifyRoutes(e *echo.Group, svc ClassifyService, stats *buckets.StatsCache, log *zap.SugaredLogger) error {
	if svc == nil {
		return errors.New("classify service is required")
	}

	cr := ClassifyRouter{svc: svc, stats: stats}

	v1 := e.Group("v1")
	v1.POST("/classify", cr.Classify)
	v1.GET("/labels", cr.GetLabels)
	log.Infow("Classify routes registered", "labels", len(svc.Labels()))
	return nil
}

func (cr *ClassifyRouter) GetLabels(cc echo.Context) error {
	c := cc.(*ctx.Context)
	return c.JSON(200, LabelList{Data: cr.svc.Labels()})
}

// Classify decodes the payload, delegates to the classifier and returns the
// label as plain text. Per-request failures become error responses; they
// never take the service down.
func (cr *ClassifyRouter) Classify(cc echo.Context) error {
	c := cc.(*ctx.Context)
	start := time.Now()

	var req ClassifyRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		c.LogValues.AddError(err)
		return cr.fail(c, start, shared.ErrInvalidRequest)
	}
	if req.Data == "" {
		return cr.fail(c, start, shared.ErrEmptyPayload)
	}
	if base64.StdEncoding.DecodedLen(len(req.Data)) > shared.MaxImagePayloadSize {
		return cr.fail(c, start, shared.ErrPayloadTooBig)
	}

	imageBytes, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.LogValues.AddError(err)
		return cr.fail(c, start, shared.ErrBadBase64)
	}

	label, err := cr.svc.Classify(c.Request().Context(), imageBytes)
	if err != nil {
		c.LogValues.AddError(err)

		var perr *classifier.PreprocessError
		if errors.As(err, &perr) {
			return cr.fail(c, start, &shared.RequestError{
				StatusCode: http.StatusBadRequest,
				Err:        errors.New("unsupported or corrupt image data"),
			})
		}

		// InferenceError and the defensive IndexError are both internal;
		// neither leaks detail past the status code.
		var ierr *labels.IndexError
		if errors.As(err, &ierr) {
			c.LogValues.LogLevel = "ERROR"
		}
		return cr.fail(c, start, shared.ErrInternalServerError)
	}

	c.LogValues.Label = label
	cr.record(c, start, label, http.StatusOK)
	return c.String(http.StatusOK, label)
}

func (cr *ClassifyRouter) fail(c *ctx.Context, start time.Time, rerr *shared.RequestError) error {
	cr.record(c, start, "", rerr.StatusCode)
	return c.JSON(rerr.StatusCode, shared.APIError{
		Message: rerr.Err.Error(),
		Object:  "error",
		Type:    errType(rerr.StatusCode),
		Code:    rerr.StatusCode,
	})
}

func (cr *ClassifyRouter) record(c *ctx.Context, start time.Time, label string, status int) {
	if cr.stats == nil {
		return
	}
	cr.stats.AddRequest(&database.ClassificationRecord{
		RequestID:  c.Reqid,
		Label:      label,
		StatusCode: status,
		Duration:   time.Since(start),
		CreatedAt:  start,
	})
}

func errType(status int) string {
	if status >= 500 {
		return "InternalError"
	}
	return "BadRequest"
}
