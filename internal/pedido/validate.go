package pedido

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

type enumerated interface {
	Valid() bool
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return OnlyDigits(value) == value
	})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(enumerated)
		return ok && value.Valid()
	})
	v.RegisterStructValidation(inputRules, Input{})
	v.RegisterStructValidation(participanteRules, Participante{})
	return v
}

func inputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(Input)
	if in.DataPedido.IsZero() {
		sl.ReportError(in.DataPedido, "dataPedido", "DataPedido", "required", "")
	}
	if in.TipoCertidao.RequiresCodigo() && in.CodigoCertidao == "" {
		sl.ReportError(in.CodigoCertidao, "codigoCertidao", "CodigoCertidao", "required", "")
	}
}

func participanteRules(sl validator.StructLevel) {
	p := sl.Current().Interface().(Participante)
	switch p.TipoDocumento {
	case DocumentoCPF:
		if len(p.CPF) != cpfDigits {
			sl.ReportError(p.CPF, "cpf", "CPF", "cpf", "")
		}
		if p.OrgaoEmissor == OrgaoOutro && p.OrgaoEmissorOutro == "" {
			sl.ReportError(p.OrgaoEmissorOutro, "orgaoEmissorOutro", "OrgaoEmissorOutro", "required", "")
		}
	case DocumentoCNPJ:
		if len(p.CNPJ) != cnpjDigits {
			sl.ReportError(p.CNPJ, "cnpj", "CNPJ", "cnpj", "")
		}
	}
}

// Validate checks a normalized payload and returns a *ValidationError that
// names every offending field.
func (in Input) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fieldPath(fe.Namespace())] = describe(fe)
	}
	return out
}

// Prepare normalizes and validates in one step.
func Prepare(in Input) (Input, error) {
	normalized := in.Normalize()
	if err := normalized.Validate(); err != nil {
		return Input{}, err
	}
	return normalized, nil
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "digits":
		return "must contain digits only"
	case "enum":
		return "is not an accepted value"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "cpf":
		return "must have 11 digits"
	case "cnpj":
		return "must have 14 digits"
	default:
		return "is invalid"
	}
}
