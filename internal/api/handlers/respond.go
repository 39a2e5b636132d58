package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
)

// DateLayout 请求中的日期格式
const DateLayout = "2006-01-02"

// statusOf 错误码对应的 HTTP 状态
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeEntityNotFound, apperr.CodeNoCheckupScheduleFound:
		return http.StatusNotFound
	case apperr.CodeServiceBayScheduleConflict,
		apperr.CodeConcurrentModification,
		apperr.CodeCheckupAlreadyScheduled,
		apperr.CodeTicketAlreadyForSchedule,
		apperr.CodeOccurrenceAlreadyFinalized:
		return http.StatusConflict
	case apperr.CodeMissingFields, apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeInvalidScheduleState,
		apperr.CodeTicketInvalidStateToChange,
		apperr.CodeCheckupOrCampaignRequired:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError 输出业务错误，未知错误按 500 处理
func (h *Handler) respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.Retryable() {
		body["retryable"] = true
	}
	c.JSON(statusOf(e.Code), body)
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": fmt.Sprintf(format, args...),
		"code":  apperr.CodeInvalidArgument,
	})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid %s", name)
		return 0, false
	}
	return id, true
}

// parseTime 接受 YYYY-MM-DD 或 RFC3339，空串返回零值
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// stepDateFields 步骤记录中允许只写日期的字段
var stepDateFields = []string{"checkInDate", "checkOutDate"}

// bindStep 解析步骤请求体，日期字段统一为 RFC3339 后写入 dst；空请求体视为 {}
func bindStep(c *gin.Context, dst interface{}) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	raw := map[string]interface{}{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}

	for _, field := range stepDateFields {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s must be a date string", field)
		}
		t, err := parseTime(s)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		raw[field] = t.Format(time.RFC3339)
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(normalized, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%s has invalid type", typeErr.Field)
		}
		return err
	}
	return nil
}
