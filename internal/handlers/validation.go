package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the custom binding rules used by request models
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("uniqueoptions", uniqueOptions); err != nil {
		return fmt.Errorf("failed to register uniqueoptions: %w", err)
	}
	return nil
}

// uniqueOptions rejects option lists that repeat a text, ignoring case and surrounding space
func uniqueOptions(fl validator.FieldLevel) bool {
	options, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		key := strings.ToLower(strings.TrimSpace(o))
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}
