package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type envelope struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
	Details  any      `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, code int, data any, warnings ...string) {
	writeJSON(w, code, envelope{Success: true, Data: data, Warnings: warnings})
}

func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Error: msg})
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported without their detail.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, r *http.Request, err error) {
	var stock *domain.StockError
	switch {
	case errors.As(err, &stock):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Error: stock.Error(), Details: stock.Details})
	case errors.Is(err, domain.ErrValidation):
		fail(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, docstore.ErrNotFound):
		fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		fail(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		fail(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v and runs struct validation.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("invalid json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return domain.Invalid("%s", describe(verrs))
		}
		return domain.Invalid("%v", err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
