package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/auth"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// Binder parses and validates request bodies.
type Binder struct {
	validate *validator.Validate
}

// NewBinder builds a Binder whose field names follow json tags.
func NewBinder() *Binder {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Binder{validate: v}
}

// Body decodes the JSON body into req and validates it.
func (b *Binder) Body(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return b.Struct(req)
}

// Struct validates req, reporting failing fields by json name.
func (b *Binder) Struct(req any) error {
	err := b.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("validation failed", map[string]any{"fields": fields})
}

func staffPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Engineer == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func staffActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, err := staffPrincipal(c)
	if err != nil {
		return domain.Actor{}, err
	}
	return principal.Actor, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
