package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code 业务错误码
type Code string

// 错误码目录
const (
	CodeNoCheckupScheduleFound     Code = "NO_CHECKUP_SCHEDULE_FOUND"
	CodeCheckupAlreadyScheduled    Code = "CHECKUP_ALREADY_SCHEDULED"
	CodeCheckupOrCampaignRequired  Code = "CHECKUP_OR_CAMPAIGN_REQUIRED"
	CodeTicketAlreadyForSchedule   Code = "MAINTENANCE_TICKET_ALREADY_FOR_GIVEN_SCHEDULE"
	CodeTicketInvalidStateToChange Code = "TICKET_INVALID_STATE_TO_CHANGE"
	CodeMissingFields              Code = "MISSING_FIELDS"
	CodeEntityNotFound             Code = "ENTITY_NOT_FOUND"
	CodeInvalidArgument            Code = "INVALID_ARGUMENT"
	CodeInvalidScheduleState       Code = "INVALID_SCHEDULE_STATE"
	CodeServiceBayScheduleConflict Code = "SERVICE_BAY_SCHEDULE_CONFLICT"
	CodeOccurrenceAlreadyFinalized Code = "OCCURRENCE_ALREADY_FINALIZED"
	CodeConcurrentModification     Code = "CONCURRENT_MODIFICATION"
)

// Error 业务异常，携带 {code, message}
type Error struct {
	Code    Code     `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable 冲突类错误可由调用方重试
func (e *Error) Retryable() bool {
	return e.Code == CodeConcurrentModification || e.Code == CodeServiceBayScheduleConflict
}

// New 创建业务错误
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound 实体不存在
func NotFound(entity string, id interface{}) *Error {
	return New(CodeEntityNotFound, "%s %v not found", entity, id)
}

// MissingFields 汇总所有缺失字段为一个错误
func MissingFields(fields []string) *Error {
	return &Error{
		Code:    CodeMissingFields,
		Message: "missing mandatory fields: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

// Conflict 并发写冲突
func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConcurrentModification, format, args...)
}

// As 从错误链中取出业务错误
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode 判断错误链中是否存在指定错误码
func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
