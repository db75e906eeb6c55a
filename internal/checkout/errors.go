package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/expr"
	"github.com/noah-isme/backend-checkout/internal/pricing"
)

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+" "+rule)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// AsValidationError converts validator failures into a ValidationError and
// returns any other error unchanged.
func AsValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Namespace()] = rule
	}
	return &ValidationError{Fields: fields}
}

// Classify maps pricing failures onto API error codes. Errors it does not
// recognise become INTERNAL.
func Classify(err error) *common.AppError {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return common.NewAppError(common.CodeValidation, "request validation failed", http.StatusBadRequest, err).
			WithDetails(verr.Fields)
	}
	var unknown *pricing.UnknownItemError
	if errors.As(err, &unknown) {
		return common.NewAppError(common.CodeUnknownItem, "basket contains an item that is not in the catalog", http.StatusUnprocessableEntity, err).
			WithDetails(map[string]any{"itemId": unknown.ID, "position": unknown.Position})
	}
	var ruleErr *pricing.RuleError
	if errors.As(err, &ruleErr) {
		details := map[string]any{"rule": ruleErr.Rule, "line": ruleErr.Line}
		if errors.Is(err, expr.ErrDivisionByZero) {
			details["reason"] = "division by zero"
		}
		return common.NewAppError(common.CodeRuleEvaluation, "pricing rule could not be evaluated", http.StatusUnprocessableEntity, err).
			WithDetails(details)
	}
	return common.NewAppError(common.CodeInternal, "internal error", http.StatusInternalServerError, err)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch Classify(err).Code {
	case common.CodeValidation:
		return "invalid"
	case common.CodeUnknownItem:
		return "unknown_item"
	case common.CodeRuleEvaluation:
		return "rule_error"
	default:
		return "error"
	}
}
