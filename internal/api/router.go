// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the project operations over HTTP with gin. The caller is
// identified by the X-Owner-Id header, which the authenticating proxy in front
// of the service sets.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/workflow"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	OwnerHeader = "X-Owner-Id"
	ownerKey    = "ownerID"
)

// ProjectAPI is the subset of services.ProjectService the handlers call.
type ProjectAPI interface {
	CreateProject(ctx context.Context, ownerID string, projectID string, name string,
		video []byte, fileName string, bucket model.SegmentLengthBucket) ([]*model.Segment, error)
	GetProject(ctx context.Context, ownerID string, projectID string) (*model.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]*model.Project, error)
	SegmentURL(ctx context.Context, ownerID string, projectID string, rank int, ttl time.Duration) (string, error)
	Stats(ctx context.Context, ownerID string) (*model.ProjectStats, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	projects       ProjectAPI
	maxUploadBytes int64
}

func NewHandler(projects ProjectAPI, maxUploadBytes int64) *Handler {
	return &Handler{projects: projects, maxUploadBytes: maxUploadBytes}
}

// NewRouter returns an engine with tracing, CORS and recovery middleware and
// every route registered under /api/v1.
func NewRouter(serviceName string, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders(OwnerHeader)
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	apiV1 := r.Group("/api/v1", requireOwner)
	{
		h.Projects(apiV1)
		h.Dashboard(apiV1)
	}
	return r
}

func requireOwner(c *gin.Context) {
	owner := c.GetHeader(OwnerHeader)
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerKey, owner)
	c.Next()
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

// badRequest is a validation failure detected by the handlers themselves.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string {
	return e.msg
}

// writeError maps err to a status. Only validation messages are echoed back;
// anything unexpected is logged and answered with a generic body.
func writeError(c *gin.Context, err error) {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		c.JSON(http.StatusBadRequest, gin.H{"error": br.msg})
	case errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, services.ErrSegmentNotFound),
		errors.Is(err, services.ErrProjectNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "owner", ownerID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
