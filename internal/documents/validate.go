package documents

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate normalizes meta and checks it against the registry's field rules.
func Validate(meta Metadata) (Metadata, error) {
	meta = meta.Normalize()
	if err := validate.Struct(meta); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return meta, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, "; "))
	}
	return meta, nil
}
