// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/jontk/loadgen/pkg/errors"
)

// ParameterSchema wraps an OpenAPI 3 schema used to structurally
// validate a workload parameter value (type, enum, numeric bounds,
// string pattern) without hand-rolling a validator per workload.
type ParameterSchema struct {
	schema *openapi3.Schema
}

// NewParameterSchema builds a ParameterSchema from an OpenAPI 3 schema
// object, e.g.:
//
//	NewParameterSchema(&openapi3.Schema{
//	    Type: &openapi3.Types{"integer"},
//	    Min:  openapi3.Float64Ptr(1),
//	    Max:  openapi3.Float64Ptr(1024),
//	})
func NewParameterSchema(schema *openapi3.Schema) *ParameterSchema {
	return &ParameterSchema{schema: schema}
}

// Validate checks value against the wrapped schema.
func (s *ParameterSchema) Validate(ctx context.Context, value any) error {
	if s == nil || s.schema == nil {
		return nil
	}
	if err := s.schema.VisitJSON(value); err != nil {
		return err
	}
	return nil
}

// ValidateParameters checks a resolved parameter map against a
// workload's ParameterStubs: every required stub must be present, and
// every present value must satisfy its schema (if any).
func ValidateParameters(stubs ParameterList, values map[string]any) error {
	for _, stub := range stubs {
		value, present := values[stub.Name]
		if !present {
			if stub.Required {
				return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
					fmt.Sprintf("missing required parameter %q", stub.Name), stub.Name, nil, nil)
			}
			continue
		}
		if stub.Schema == nil {
			continue
		}
		if err := stub.Schema.Validate(context.Background(), value); err != nil {
			return errors.NewValidationError(errors.ErrorCodeInvalidParameter,
				fmt.Sprintf("parameter %q failed validation", stub.Name), stub.Name, value, err)
		}
	}
	return nil
}
