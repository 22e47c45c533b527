package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"challenge-quest/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bind decodes the JSON body into dst and runs its validate tags. Failures come
// back as VALIDATION_FAILED naming the first offending field.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return services.Validation("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return services.Validation("%s", fieldMessage(verrs[0]))
		}
		return services.Validation("invalid request body")
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, services.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}

func pageParams(c *fiber.Ctx) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit", 0); err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(c, "offset", 0)
	return limit, offset, err
}
