/*
Package verdict evaluates a user supplied boolean expression against the
measurement results, so that a run can gate later benchmarks on the same host.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package verdict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
)

// Variables maps the names usable in an expression to their measured values.
// Only measurements that ran are present.
type Variables map[string]interface{}

// Check parses expr and evaluates it with vars. It fails when the expression
// refers to a variable that was not measured or does not produce a boolean.
func Check(expr string, vars Variables) (pass bool, err error) {
	var expression *govaluate.EvaluableExpression
	if expression, err = govaluate.NewEvaluableExpressionWithFunctions(expr, functions()); err != nil {
		err = fmt.Errorf("failed to parse check expression %q: %v", expr, err)
		return
	}
	for _, name := range expression.Vars() {
		if _, ok := vars[name]; !ok {
			err = fmt.Errorf("check expression uses %q, which was not measured (available: %s)", name, strings.Join(vars.names(), ", "))
			return
		}
	}
	var result interface{}
	if result, err = expression.Evaluate(vars); err != nil {
		err = fmt.Errorf("failed to evaluate check expression %q: %v", expr, err)
		return
	}
	var ok bool
	if pass, ok = result.(bool); !ok {
		err = fmt.Errorf("check expression %q produced %v, not a boolean", expr, result)
	}
	return
}

func (vars Variables) names() (names []string) {
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func toFloat(arg interface{}) (float64, error) {
	switch t := arg.(type) {
	case int:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected argument type %T", arg)
	}
}

// functions available in check expressions
func functions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"abs": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("abs takes one argument")
			}
			v, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			if v < 0 {
				v = -v
			}
			return v, nil
		},
		"ratio": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("ratio takes two arguments")
			}
			a, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			b, err := toFloat(args[1])
			if err != nil {
				return nil, err
			}
			if b == 0 {
				return nil, fmt.Errorf("ratio denominator is zero")
			}
			return a / b, nil
		},
	}
}
