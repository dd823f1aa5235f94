package httpserver

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/partscatalog/imagecache/internal/logger"
)

// ErrorResponse is the JSON body of every non-2xx API answer.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

func newErrorResponse(err error, message string, code int) *ErrorResponse {
	errorMsg := message
	if err != nil {
		errorMsg = err.Error()
	}
	return &ErrorResponse{
		Error:         errorMsg,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// handleError logs err and answers with an ErrorResponse.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := newErrorResponse(err, message, code)
	s.logger.WithContext(c.Request().Context()).Warn("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Error(err),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()))
	return c.JSON(code, resp)
}
