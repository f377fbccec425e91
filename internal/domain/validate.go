package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidOrder = errors.New("invalid order")

// InvalidOrderError names the first field that failed validation.
type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s: %s", e.Field, e.Reason)
}

func (e *InvalidOrderError) Is(target error) bool {
	return target == ErrInvalidOrder
}

func invalid(field, reason string) error {
	return &InvalidOrderError{Field: field, Reason: reason}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks an order before it is admitted anywhere. It has no side
// effects, so a rejected order leaves every collection untouched.
func Validate(o *Order) error {
	if o == nil {
		return invalid("order", "missing")
	}
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return invalid(verrs[0].Field(), "is required")
		}
		return invalid("order", err.Error())
	}
	switch o.Side {
	case Buy, Sell:
	default:
		return invalid("side", fmt.Sprintf("unknown side %q", o.Side))
	}
	switch o.Type {
	case Limit, Market, "":
	default:
		return invalid("type", fmt.Sprintf("unknown type %q", o.Type))
	}
	if o.Quantity.Sign() <= 0 {
		return invalid("quantity", "must be > 0")
	}
	if o.Price.Sign() < 0 {
		return invalid("price", "must be >= 0")
	}
	return validateTimeInForce(o)
}

func validateTimeInForce(o *Order) error {
	tif := o.TimeInForce
	expiry := 0
	for _, set := range []bool{tif.GTC, tif.GFD, tif.GTD} {
		if set {
			expiry++
		}
	}
	if expiry > 1 {
		return invalid("time_in_force", "at most one of GTC, GFD, GTD")
	}
	if tif.GTD && o.ExpireAt.IsZero() {
		return invalid("expire_at", "required for GTD")
	}
	if o.Stop && o.StopPrice.Sign() <= 0 {
		return invalid("stop_price", "must be > 0 for stop orders")
	}
	if o.StopPrice.Sign() < 0 {
		return invalid("stop_price", "must be >= 0")
	}
	return nil
}
