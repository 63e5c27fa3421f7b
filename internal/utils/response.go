package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一成功响应
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Success 返回 200
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// Created 返回 201
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// SuccessWith 在标准字段之外附加顶层字段（如分页信息）
func SuccessWith(c *gin.Context, message string, data interface{}, extra gin.H) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// NewErrorResponse 构造错误响应体，4xx 为 fail，其余为 error
func NewErrorResponse(code int, message string) ErrorResponse {
	status := "error"
	if code >= 400 && code < 500 {
		status = "fail"
	}
	return ErrorResponse{Success: false, Status: status, Message: message}
}
