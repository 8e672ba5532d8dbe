package record

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/recordbook/core"
)

var defaultValidator = newDefaultValidator()

// Validator checks submitted Fields against a Schema.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewValidator(validate *validator.Validate, translator ut.Translator) *Validator {
	return &Validator{validate: validate, translator: translator}
}

func newDefaultValidator() *Validator {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	return NewValidator(validate, translator)
}

// ValidateSchema checks that every field has a name made of word characters and that names are unique.
func (v *Validator) ValidateSchema(s Schema) error {
	var flds []core.FieldError
	if err := v.validate.Var(s.Name, "required,alphanum_"); err != nil {
		flds = append(flds, v.fieldErrors(err, "name")...)
	}
	if len(s.Fields) == 0 {
		flds = append(flds, core.FieldError{Field: "fields", Error: "a schema needs at least one field"})
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, fs := range s.Fields {
		if err := v.validate.Var(fs.Name, "required,alphanum_"); err != nil {
			flds = append(flds, v.fieldErrors(err, "fields")...)
			continue
		}
		if seen[fs.Name] {
			flds = append(flds, core.FieldError{Field: fs.Name, Error: "duplicate field"})
		}
		seen[fs.Name] = true
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.Errorf("invalid schema %q", s.Name), flds...)
	}
	return nil
}

// Clean trims every value and drops fields the schema does not declare.
func (v *Validator) Clean(s Schema, fields Fields) Fields {
	cleaned := make(Fields, len(s.Fields))
	for _, fs := range s.Fields {
		if val, ok := fields[fs.Name]; ok {
			cleaned[fs.Name] = core.CleanString(val)
		}
	}
	return cleaned
}

// Check validates the cleaned values: required fields must be non-empty and every rule must pass.
// Keys the schema does not declare are ignored.
func (v *Validator) Check(s Schema, fields Fields) error {
	var flds []core.FieldError
	for _, fs := range s.Fields {
		val := core.CleanString(fields[fs.Name])
		if err := v.validate.Var(val, fieldTag(fs)); err != nil {
			flds = append(flds, v.fieldErrors(err, fs.Name)...)
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (v *Validator) fieldErrors(err error, field string) []core.FieldError {
	if vErrs, ok := err.(validator.ValidationErrors); ok {
		return core.TranslateFieldErrors(vErrs, v.translator, field)
	}
	return []core.FieldError{{Field: field, Error: err.Error()}}
}

func fieldTag(fs FieldSpec) string {
	tags := make([]string, 0, 2)
	if fs.Required {
		tags = append(tags, "required")
	} else {
		tags = append(tags, "omitempty")
	}
	if fs.Rules != "" {
		tags = append(tags, fs.Rules)
	}
	return strings.Join(tags, ",")
}
