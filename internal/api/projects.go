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

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

const (
	// multipartSlack covers the form fields and boundaries around the video part.
	multipartSlack = 1 << 20
	maxFormMemory  = 32 << 20
)

// Projects registers the project routes on r.
func (h *Handler) Projects(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.POST("", h.createProject)
		projects.GET("", h.listProjects)
		projects.GET("/:id", h.getProject)
		projects.GET("/:id/segments/:rank/url", h.segmentURL)
	}
}

type createProjectResponse struct {
	ProjectID string           `json:"projectId"`
	State     string           `json:"state"`
	Segments  []*model.Segment `json:"segments"`
}

func (h *Handler) createProject(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartSlack)
	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, &badRequest{msg: "video exceeds the upload limit"})
			return
		}
		writeError(c, &badRequest{msg: "multipart form is required"})
		return
	}

	projectID := strings.TrimSpace(c.PostForm("projectId"))
	if projectID == "" {
		writeError(c, &badRequest{msg: "projectId is required"})
		return
	}
	bucket, err := model.ParseSegmentLengthBucket(c.PostForm("timeRequested"))
	if err != nil {
		writeError(c, &badRequest{msg: err.Error()})
		return
	}
	video, fileName, err := h.readVideo(c)
	if err != nil {
		writeError(c, err)
		return
	}
	name := strings.TrimSpace(c.PostForm("name"))

	segments, err := h.projects.CreateProject(c.Request.Context(), ownerID(c), projectID, name, video, fileName, bucket)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &createProjectResponse{
		ProjectID: projectID,
		State:     string(model.ProjectStateCompleted),
		Segments:  segments,
	})
}

// readVideo returns the uploaded bytes and a generated `<uuid>.<ext>` file
// name. The content must sniff as a video and fit the upload ceiling.
func (h *Handler) readVideo(c *gin.Context) ([]byte, string, error) {
	header, err := c.FormFile("video")
	if err != nil {
		return nil, "", &badRequest{msg: "video file is required"}
	}
	if header.Size > h.maxUploadBytes {
		return nil, "", &badRequest{msg: "video exceeds the upload limit"}
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "video/") && ct != "application/octet-stream" {
		return nil, "", &badRequest{msg: fmt.Sprintf("unsupported content type %q", ct)}
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = file.Close() }()
	video, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(video)) > h.maxUploadBytes {
		return nil, "", &badRequest{msg: "video exceeds the upload limit"}
	}

	kind, err := filetype.Video(video)
	if err != nil || kind == filetype.Unknown {
		return nil, "", &badRequest{msg: "uploaded file is not a recognized video"}
	}
	return video, uuid.NewString() + "." + kind.Extension, nil
}

func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.projects.ListProjects(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) getProject(c *gin.Context) {
	project, err := h.projects.GetProject(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) segmentURL(c *gin.Context) {
	rank, err := strconv.Atoi(c.Param("rank"))
	if err != nil || rank < 1 {
		writeError(c, &badRequest{msg: "rank must be a positive integer"})
		return
	}
	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			writeError(c, &badRequest{msg: "ttl must be a positive duration"})
			return
		}
	}

	url, err := h.projects.SegmentURL(c.Request.Context(), ownerID(c), c.Param("id"), rank, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
