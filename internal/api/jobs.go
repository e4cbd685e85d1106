package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
	"github.com/ah-its-andy/sparkconvert/internal/job"
)

const sniffLen = 512

// submitJobs accepts a multipart form with one or more "files" parts. An
// optional "target" form value is applied to every job that allows it.
func (s *Server) submitJobs(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in form field \"files\""})
		return
	}

	sources := make([]job.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := uploadSource(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sources = append(sources, src)
	}
	res := s.deps.Manager.Submit(sources)

	if target := c.PostForm("target"); target != "" {
		for i, j := range res.Jobs {
			if !formats.Allows(j.MediaType, target) {
				continue
			}
			if updated, err := s.deps.Manager.SetTarget(j.ID, target); err == nil {
				res.Jobs[i] = updated
			}
		}
	}

	status := http.StatusCreated
	if len(res.Jobs) == 0 {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// uploadSource describes an uploaded part. Its bytes are only read if the
// manager accepts it.
func uploadSource(fh *multipart.FileHeader) (job.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return job.Source{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return job.Source{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	mt := formats.Detect(fh.Filename, fh.Header.Get("Content-Type"), head[:n])
	return job.Source{
		Name:      fh.Filename,
		MediaType: mt,
		Size:      fh.Size,
		Load: func() ([]byte, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return io.ReadAll(f)
		},
	}, nil
}

func (s *Server) listJobs(c *gin.Context) {
	jobs := s.deps.Manager.List()
	if st := c.Query("status"); st != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == st {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "total": len(jobs), "eligible": s.deps.Manager.Eligible()})
}

func (s *Server) getJob(c *gin.Context) {
	j, ok := s.deps.Manager.Get(c.Param("id"))
	if !ok {
		writeError(c, job.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, j)
}

type targetRequest struct {
	Target string `json:"target"`
}

func (s *Server) setTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	j, err := s.deps.Manager.SetTarget(c.Param("id"), req.Target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) removeJob(c *gin.Context) {
	if err := s.deps.Manager.Remove(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// removeJobs clears completed jobs with ?status=completed, or every job.
func (s *Server) removeJobs(c *gin.Context) {
	var n int
	switch c.Query("status") {
	case "":
		n = s.deps.Manager.RemoveAll()
	case string(job.StatusCompleted):
		n = s.deps.Manager.RemoveCompleted()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "only status=completed can be cleared selectively"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) downloadOutput(c *gin.Context) {
	j, data, err := s.deps.Manager.Output(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", j.OutputName))
	c.Data(http.StatusOK, string(j.OutputMediaType), data)
}

func (s *Server) getJobLog(c *gin.Context) {
	id := c.Param("id")
	if s.deps.Logs != nil {
		if l, ok := s.deps.Logs.GetLog(id); ok {
			c.JSON(http.StatusOK, l)
			return
		}
	}
	if _, ok := s.deps.Manager.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"job_id": id, "logs": ""})
		return
	}
	writeError(c, job.ErrNotFound)
}

// activeLogs lists logs of jobs that are still converting.
func (s *Server) activeLogs(c *gin.Context) {
	if s.deps.Logs == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Logs.GetAllActiveLogs())
}
