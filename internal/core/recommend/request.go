package recommend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tripfx/tripfx/internal/core"
)

// Request asks for destination recommendations from one airport in one currency.
// Dates are YYYY-MM-DD; an empty outbound date defaults to the configured lead time.
// Limits above the maximum are capped, not rejected.
type Request struct {
	BaseCurrency     string `json:"base_currency" validate:"required,len=3,alpha,major_currency"`
	DepartureAirport string `json:"departure_airport" validate:"required,len=3,alpha"`
	OutboundDate     string `json:"outbound_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReturnDate       string `json:"return_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Limit            int    `json:"limit,omitempty" validate:"min=0"`
}

// query is a validated, normalized request.
type query struct {
	Base      string
	Airport   string
	Outbound  time.Time
	Return    *time.Time
	Limit     int
	RateStart time.Time
	RateEnd   time.Time
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("major_currency", func(fl validator.FieldLevel) bool {
			return core.IsMajorCurrency(fl.Field().String())
		})
	})
	return validate
}

// Normalize uppercases and trims the codes and dates in place.
func (r *Request) Normalize() {
	r.BaseCurrency = strings.ToUpper(strings.TrimSpace(r.BaseCurrency))
	r.DepartureAirport = strings.ToUpper(strings.TrimSpace(r.DepartureAirport))
	r.OutboundDate = strings.TrimSpace(r.OutboundDate)
	r.ReturnDate = strings.TrimSpace(r.ReturnDate)
}

// Validate normalizes r and checks it. The error wraps ErrValidation.
func (r *Request) Validate() error {
	r.Normalize()
	if err := requestValidator().Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		messages := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			messages = append(messages, fieldMessage(fe))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "len":
		return fmt.Sprintf("%s must be %s letters", field, fe.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain only letters", field)
	case "major_currency":
		return fmt.Sprintf("%s %v is not a supported currency", field, fe.Value())
	case "datetime":
		return fmt.Sprintf("%s must be a YYYY-MM-DD date", field)
	case "min":
		return fmt.Sprintf("%s must not be negative", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// build validates r and resolves defaults relative to now.
func (r Request) build(now time.Time, leadDays, window, defaultLimit, maxLimit int) (query, error) {
	if err := r.Validate(); err != nil {
		return query{}, err
	}

	today := core.Day(now)
	q := query{Base: r.BaseCurrency, Airport: r.DepartureAirport, Limit: r.Limit}

	if r.OutboundDate == "" {
		q.Outbound = today.AddDate(0, 0, leadDays)
	} else {
		outbound, _ := time.Parse(core.DateLayout, r.OutboundDate)
		if outbound.Before(today) {
			return query{}, fmt.Errorf("%w: outbound_date %s is in the past", ErrValidation, r.OutboundDate)
		}
		q.Outbound = outbound
	}

	if r.ReturnDate != "" {
		ret, _ := time.Parse(core.DateLayout, r.ReturnDate)
		if ret.Before(q.Outbound) {
			return query{}, fmt.Errorf("%w: return_date %s is before outbound_date", ErrValidation, r.ReturnDate)
		}
		q.Return = &ret
	}

	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	if window < 2 {
		window = 2
	}
	q.RateEnd = today
	q.RateStart = today.AddDate(0, 0, -(window - 1))
	return q, nil
}
