// Package admission 在订单进入调度队列前做准入检查：
// 先按结构体标签校验载荷，再依次执行配置的 expr 规则
package admission

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/go-playground/validator/v10"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
)

// Rule 一条准入规则，表达式结果为 false 时拒绝订单
type Rule struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	Expr string `mapstructure:"expr" yaml:"expr" validate:"required"`
}

type compiledRule struct {
	name    string
	program *vm.Program
}

// Checker 订单准入检查器
type Checker struct {
	validate *validator.Validate
	rules    []compiledRule
	logger   *slog.Logger
}

// New 编译全部规则，任一规则无法编译时返回错误
func New(rules []Rule, logger *slog.Logger) (*Checker, error) {
	c := &Checker{validate: newValidator(), logger: logger.With("component", "admission")}

	sample := Env(&types.Order{Kind: types.KindKitting, Kitting: &types.KittingTask{}})
	for _, r := range rules {
		program, err := expr.Compile(r.Expr, expr.Env(sample), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %q compilation failed: %w", r.Name, err)
		}
		c.rules = append(c.rules, compiledRule{name: r.Name, program: program})
	}
	return c, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(types.Part)
		if !p.Type.Valid() {
			sl.ReportError(p.Type, "Type", "type", "part_type", "")
		}
		if !p.Color.Valid() {
			sl.ReportError(p.Color, "Color", "color", "part_color", "")
		}
	}, types.Part{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		task := sl.Current().Interface().(types.KittingTask)
		if !task.Destination.Valid() {
			sl.ReportError(task.Destination, "Destination", "destination", "destination", "")
		}
	}, types.KittingTask{})
	return v
}

// Admit 校验订单载荷并执行准入规则，拒绝时返回 ErrInvalidOrderPayload
func (c *Checker) Admit(o *types.Order) error {
	if err := c.validate.Struct(o.Announcement()); err != nil {
		return errs.InvalidPayload(o.ID, formatValidationError(err))
	}

	env := Env(o)
	for _, r := range c.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			return errs.InvalidPayload(o.ID, fmt.Sprintf("rule %q execution failed: %v", r.name, err))
		}
		if ok, _ := out.(bool); !ok {
			c.logger.Info("订单未通过准入规则", "order_id", o.ID, "rule", r.name)
			return errs.InvalidPayload(o.ID, fmt.Sprintf("rule %q not satisfied", r.name))
		}
	}
	return nil
}

// Env 构造规则表达式可以访问的变量
func Env(o *types.Order) map[string]interface{} {
	parts := make([]string, 0)
	for _, p := range o.RequiredParts() {
		parts = append(parts, p.String())
	}

	carriers := make([]int, 0)
	quadrants := make([]int, 0)
	station := 0
	destination := ""
	switch {
	case o.Kitting != nil:
		carriers = append(carriers, o.Kitting.Carrier)
		for _, kp := range o.Kitting.Parts {
			quadrants = append(quadrants, kp.Quadrant)
		}
		destination = o.Kitting.Destination.String()
	case o.Assembly != nil:
		carriers = append(carriers, o.Assembly.Carriers...)
		station = o.Assembly.Station
	case o.Combined != nil:
		station = o.Combined.Station
	}

	return map[string]interface{}{
		"id":          o.ID,
		"kind":        o.Kind.String(),
		"priority":    o.Priority,
		"parts":       parts,
		"carriers":    carriers,
		"station":     station,
		"quadrants":   quadrants,
		"destination": destination,
	}
}

func formatValidationError(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return strings.Join(messages, "; ")
}
