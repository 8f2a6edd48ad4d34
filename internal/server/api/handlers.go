package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trafficanalyzer/internal/timestamp"
	"trafficanalyzer/internal/traffic"
	"trafficanalyzer/pkg/model"
)

// Service 是 handler 依赖的会话操作，由 session.Session 实现。
type Service interface {
	Range(w traffic.Window) []model.Sample
	Average(w traffic.Window) (traffic.Average, error)
	PeakHour(start, end time.Time) (traffic.Peak, error)
	Summary() (traffic.Summary, error)
	Add(ctx context.Context, value int, ts time.Time, rawTimestamp string) error
	Delete(ctx context.Context, ts time.Time) (model.Sample, error)
	Export(ctx context.Context, w io.Writer) error
}

type Handlers struct {
	svc    Service
	parser timestamp.Parser
}

func NewHandlers(svc Service, parser timestamp.Parser) *Handlers {
	return &Handlers{svc: svc, parser: parser}
}

type addRequest struct {
	Traffic   *int   `json:"traffic"`
	Timestamp string `json:"timestamp"`
}

func (h *Handlers) Range(c *gin.Context) {
	w, ok := h.window(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Range(w))
}

func (h *Handlers) Average(c *gin.Context) {
	w, ok := h.window(c)
	if !ok {
		return
	}
	avg, err := h.svc.Average(w)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avg)
}

func (h *Handlers) PeakHour(c *gin.Context) {
	start, ok := h.timeParam(c, "start")
	if !ok {
		return
	}
	end, ok := h.timeParam(c, "end")
	if !ok {
		return
	}
	peak, err := h.svc.PeakHour(start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, peak)
}

func (h *Handlers) Summary(c *gin.Context) {
	sum, err := h.svc.Summary()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handlers) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON 解析失败：" + err.Error()})
		return
	}
	if req.Traffic == nil || req.Timestamp == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "traffic/timestamp 不能为空"})
		return
	}
	ts, err := h.parser.Parse(req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Add(c.Request.Context(), *req.Traffic, ts, req.Timestamp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "写入数据文件失败：" + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, model.Sample{Traffic: *req.Traffic, Timestamp: ts})
}

func (h *Handlers) Delete(c *gin.Context) {
	ts, ok := h.timeParam(c, "timestamp")
	if !ok {
		return
	}
	removed, err := h.svc.Delete(c.Request.Context(), ts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, removed)
}

func (h *Handlers) Export(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="exported_trafficdata.csv"`)
	c.Status(http.StatusOK)
	if err := h.svc.Export(c.Request.Context(), c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handlers) window(c *gin.Context) (traffic.Window, bool) {
	anchor, ok := h.timeParam(c, "at")
	if !ok {
		return traffic.Window{}, false
	}
	width, err := ParseWindow(c.Query("window"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window 参数非法：" + err.Error()})
		return traffic.Window{}, false
	}
	dir := traffic.Forward
	switch c.DefaultQuery("direction", "forward") {
	case "forward", "1":
	case "backward", "-1":
		dir = traffic.Backward
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": traffic.ErrInvalidDirection.Error()})
		return traffic.Window{}, false
	}

	w, err := traffic.NewWindow(anchor, width, dir)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return traffic.Window{}, false
	}
	return w, true
}

func (h *Handlers) timeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " 参数不能为空"})
		return time.Time{}, false
	}
	ts, err := h.parser.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " 参数非法：" + err.Error()})
		return time.Time{}, false
	}
	return ts, true
}

// ParseWindow 接受秒数（"3600"）或 Go duration（"1h"）；空串视为 0。
func ParseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	switch {
	case err == nil:
		return traffic.WindowSeconds(secs)
	case errors.Is(err, strconv.ErrRange):
		return 0, traffic.ErrInvalidWindow
	}
	return time.ParseDuration(raw)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, traffic.ErrNotFound),
		errors.Is(err, traffic.ErrNoneFound),
		errors.Is(err, traffic.ErrNoData),
		errors.Is(err, traffic.ErrEmpty):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, traffic.ErrInvalidRange),
		errors.Is(err, traffic.ErrInvalidDirection),
		errors.Is(err, traffic.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
