package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData 分页数据
type PageData struct {
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Items interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 成功响应带消息
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// SuccessWithPage 成功响应带分页
func SuccessWithPage(c *gin.Context, total int64, page, size int, items interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: PageData{
			Total: total,
			Page:  page,
			Size:  size,
			Items: items,
		},
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    400,
		Message: message,
	})
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    401,
		Message: message,
	})
}

// Forbidden 403错误
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Code:    403,
		Message: message,
	})
}

// NotFound 404错误
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Code:    404,
		Message: message,
	})
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code:    500,
		Message: message,
	})
}

// TooManyRequests 429错误
func TooManyRequests(c *gin.Context, message string) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    429,
		Message: message,
	})
}

// ErrorCode 错误码定义
const (
	ErrCodeSuccess            = 0
	ErrCodeBadRequest         = 400
	ErrCodeUnauthorized       = 401
	ErrCodeForbidden          = 403
	ErrCodeNotFound           = 404
	ErrCodeTooManyRequests    = 429
	ErrCodeInternalError      = 500
	ErrCodeInvalidParams      = 1001
	ErrCodeInvalidOrder       = 1002
	ErrCodeOrderExists        = 1003
	ErrCodeOrderNotFound      = 1004
	ErrCodeProfileNotFound    = 2001
	ErrCodeBlacklistInvalid   = 3001
	ErrCodeBlacklistNotFound  = 3002
	ErrCodeAlertNotFound      = 4001
	ErrCodeAlertClosed        = 4002
	ErrCodeInvalidAlertStatus = 4003
)

// ErrorMessages 错误消息映射
var ErrorMessages = map[int]string{
	ErrCodeSuccess:            "success",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "not found",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeInternalError:      "internal error",
	ErrCodeInvalidParams:      "invalid parameters",
	ErrCodeInvalidOrder:       "invalid order",
	ErrCodeOrderExists:        "order already recorded",
	ErrCodeOrderNotFound:      "order not found",
	ErrCodeProfileNotFound:    "risk profile not found",
	ErrCodeBlacklistInvalid:   "invalid blacklist entry",
	ErrCodeBlacklistNotFound:  "blacklist entry not found",
	ErrCodeAlertNotFound:      "alert not found",
	ErrCodeAlertClosed:        "alert already closed",
	ErrCodeInvalidAlertStatus: "invalid alert status",
}
