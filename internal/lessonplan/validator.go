package lessonplan

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	notBlankTag   = "notblank"
	materialsTag  = "materials"
	evaluationTag = "evaluation"
)

// messages maps field (json name) to the message shown when it is missing.
var messages = map[string]string{
	"title":               "Lesson title is required",
	"subject":             "Please select a subject",
	"class":               "Please select a class",
	"academicYear":        "Please select an academic year",
	"date":                "Please select a date for the lesson",
	"chapterId":           "Please select a chapter from the curriculum",
	"learningOutcomes":    "Please select at least one learning outcome",
	"learningObjectives":  "Learning objectives are required",
	"teachingMethodology": "Teaching methodology is required",
	"materials":           "Please provide at least one material (text, file, or link)",
	"evaluation":          "Please provide evaluation criteria or at least one weighted item",
}

const invalidDateMessage = "Please enter a valid date"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()

		// Report json field names instead of Go names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
			if s, ok := fl.Field().Interface().(string); ok {
				return strings.TrimSpace(s) != ""
			}
			return false
		})
		v.RegisterStructValidation(draftStructValidation, Draft{})

		validate = v
	})
	return validate
}

// draftStructValidation checks the rules spanning several fields.
func draftStructValidation(sl validator.StructLevel) {
	d, ok := sl.Current().Interface().(Draft)
	if !ok {
		return
	}
	if strings.TrimSpace(d.RequiredMaterials) == "" && len(d.ResourceFiles) == 0 && len(d.ResourceLinks) == 0 {
		sl.ReportError(d.RequiredMaterials, "materials", "RequiredMaterials", materialsTag, "")
	}
	if strings.TrimSpace(d.EvaluationCriteria) == "" && len(d.EvaluationItems) == 0 {
		sl.ReportError(d.EvaluationCriteria, "evaluation", "EvaluationCriteria", evaluationTag, "")
	}
}

// Validate returns one message per violated rule, keyed by field name. Every
// rule is checked; an empty map means the draft may be submitted.
func Validate(d Draft) map[string]string {
	errs := map[string]string{}

	err := draftValidator().Struct(d)
	if err == nil {
		return errs
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["draft"] = err.Error()
		return errs
	}

	for _, fe := range fieldErrs {
		field := fe.Field()
		if fe.Tag() == "datetime" {
			errs[field] = invalidDateMessage
			continue
		}
		if msg, ok := messages[field]; ok {
			errs[field] = msg
			continue
		}
		errs[field] = field + " is invalid"
	}
	return errs
}
