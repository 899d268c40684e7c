package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/CIRWEL/unitares-sub004/internal/apierr"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// bindAndValidate coerces numeric/bool-ish strings in raw to match spec's
// argument struct, JSON-round-trips raw into a fresh instance of that
// struct, and runs the struct's `validate` tags. It returns the bound
// struct, the list of fields that were coerced, and a validation_error on
// the first failing rule.
func bindAndValidate(spec ToolSpec, raw map[string]any) (any, []string, error) {
	if spec.NewArgs == nil {
		return nil, nil, nil
	}
	args := spec.NewArgs()
	coerced := coerceMap(raw, args)

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.CategorySystem, apierr.CodeOperationFailed, err)
	}
	if err := json.Unmarshal(buf, args); err != nil {
		return nil, nil, apierr.New(apierr.CategoryValidation, apierr.CodeInvalidParam, "arguments do not match the expected shape")
	}

	if err := structValidator.Struct(args); err != nil {
		return nil, nil, translateValidationError(err)
	}
	return args, coerced, nil
}

func translateValidationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return apierr.New(apierr.CategoryValidation, apierr.CodeInvalidParam, "argument validation failed")
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apierr.New(apierr.CategoryValidation, apierr.CodeMissingRequired,
			fmt.Sprintf("missing required argument %q", field))
	case "max", "lte":
		return apierr.New(apierr.CategoryValidation, apierr.CodeValueTooLarge,
			fmt.Sprintf("argument %q exceeds the maximum of %s", field, fe.Param()))
	default:
		return apierr.New(apierr.CategoryValidation, apierr.CodeInvalidParam,
			fmt.Sprintf("argument %q failed %q validation", field, fe.Tag()))
	}
}
