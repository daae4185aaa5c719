// handlers_code.go - Code generation handler
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/codegen"
)

// CodeHandlerImpl implements the CodeHandler interface
type CodeHandlerImpl struct{}

// NewCodeHandler creates a new code handler
func NewCodeHandler() CodeHandler {
	return &CodeHandlerImpl{}
}

// HandleGenerateCode computes the code for a classification body.
// With ?fallback=true an empty or "0" code is retried with Sequence 1.
func (h *CodeHandlerImpl) HandleGenerateCode(c echo.Context) error {
	var req codegen.Classification
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid classification", err)
	}
	if req.Category == "" {
		return NewValidationError("Category")
	}

	code := codegen.GenerateCode(req)
	if c.QueryParam("fallback") == "true" {
		code = codegen.GenerateWithFallback(req)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":           code,
		"categoryPrefix": codegen.CategoryPrefix(req.Category),
	})
}
