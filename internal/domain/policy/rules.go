package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
	"txcalc/pkg/logger"
)

// Rule is a boolean expression a document must satisfy before it is saved
// or submitted. The document is bound to the variable doc.
//
//	- name: discount-cap
//	  doctypes: [Sales Invoice]
//	  on: submit
//	  expr: doc.additional_discount_percentage <= 20
//	  message: Discounts above 20% need approval.
type Rule struct {
	Name     string   `yaml:"name" validate:"required"`
	DocTypes []string `yaml:"doctypes"`
	On       string   `yaml:"on" validate:"required,oneof=save submit"`
	Expr     string   `yaml:"expr" validate:"required"`
	Message  string   `yaml:"message" validate:"required"`
}

// AppliesTo reports whether the rule covers docType. An empty list covers all.
func (r *Rule) AppliesTo(docType string) bool {
	return len(r.DocTypes) == 0 || slices.Contains(r.DocTypes, docType)
}

type rulesFile struct {
	Rules []Rule `yaml:"rules" validate:"dive"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// RuleSet is a compiled list of rules.
type RuleSet struct {
	rules []compiledRule
}

// LoadRulesFile reads rules from a YAML file.
func LoadRulesFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// LoadRules parses a YAML document with a top-level rules list.
func LoadRules(r io.Reader) (*RuleSet, error) {
	var file rulesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return NewRuleSet(file.Rules)
}

// NewRuleSet compiles rules. Expressions must evaluate to a bool.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("rule environment: %w", err)
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, iss := env.Compile(r.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, iss.Err())
		}
		out := ast.OutputType()
		if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", r.Name, out)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, prg: prg})
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Check evaluates the rules for event against doc and returns the first
// violation.
func (rs *RuleSet) Check(ctx context.Context, on string, doc *transaction.Document) error {
	var vars map[string]any
	for i := range rs.rules {
		r := &rs.rules[i]
		if r.On != on || !r.AppliesTo(doc.DocType) {
			continue
		}
		if vars == nil {
			vars = map[string]any{"doc": Activation(doc)}
		}
		val, _, err := r.prg.Eval(vars)
		if err != nil {
			logger.Warn(ctx, "rule evaluation failed", "rule", r.Name, "error", err)
			return apperror.NewBusinessRule(apperror.CodeRuleViolation,
				fmt.Sprintf("Rule %s could not be evaluated.", r.Name)).
				WithDetail("rule", r.Name).WithCause(err)
		}
		ok, isBool := val.Value().(bool)
		if !isBool {
			return apperror.NewBusinessRule(apperror.CodeRuleViolation,
				fmt.Sprintf("Rule %s did not return a boolean.", r.Name)).
				WithDetail("rule", r.Name)
		}
		if !ok {
			return apperror.NewBusinessRule(apperror.CodeRuleViolation, r.Message).
				WithDetail("rule", r.Name)
		}
	}
	return nil
}

// Register runs the rules as before-save and before-submit hooks.
func (rs *RuleSet) Register(hooks *domain.DocumentHooks) {
	hooks.OnBeforeSave(func(ctx context.Context, doc *transaction.Document) error {
		return rs.Check(ctx, "save", doc)
	})
	hooks.OnBeforeSubmit(func(ctx context.Context, doc *transaction.Document) error {
		return rs.Check(ctx, "submit", doc)
	})
}

// Activation exposes a document to rule expressions. Decimals become
// doubles; child tables become lists of maps.
func Activation(doc *transaction.Document) map[string]any {
	items := make([]any, 0, len(doc.Items))
	for i := range doc.Items {
		l := &doc.Items[i]
		items = append(items, map[string]any{
			"idx":                 int64(l.Idx),
			"item_code":           l.ItemCode,
			"warehouse":           l.Warehouse,
			"qty":                 num(l.Qty),
			"uom":                 l.UOM,
			"price_list_rate":     num(l.PriceListRate),
			"discount_percentage": num(l.DiscountPercentage),
			"rate":                num(l.Rate),
			"amount":              num(l.Amount),
			"net_amount":          num(l.NetAmount),
			"item_tax_template":   l.ItemTaxTemplate,
		})
	}
	taxes := make([]any, 0, len(doc.Taxes))
	for i := range doc.Taxes {
		t := &doc.Taxes[i]
		taxes = append(taxes, map[string]any{
			"idx":          int64(t.Idx),
			"charge_type":  string(t.ChargeType),
			"account_head": t.AccountHead,
			"rate":         num(t.Rate),
			"tax_amount":   num(t.TaxAmount),
			"total":        num(t.Total),
		})
	}

	return map[string]any{
		"doctype":                        doc.DocType,
		"name":                           doc.Name,
		"docstatus":                      int64(doc.DocStatus),
		"company":                        doc.Company,
		"customer":                       doc.Customer,
		"supplier":                       doc.Supplier,
		"date":                           doc.Date(),
		"is_return":                      bool(doc.IsReturn),
		"currency":                       doc.Currency,
		"conversion_rate":                num(doc.ConversionRate),
		"additional_discount_percentage": num(doc.AdditionalDiscountPercentage),
		"discount_amount":                num(doc.DiscountAmount),
		"total_qty":                      num(doc.TotalQty),
		"total":                          num(doc.Total),
		"net_total":                      num(doc.NetTotal),
		"total_taxes_and_charges":        num(doc.TotalTaxesAndCharges),
		"grand_total":                    num(doc.GrandTotal),
		"base_grand_total":               num(doc.BaseGrandTotal),
		"rounded_total":                  num(doc.RoundedTotal),
		"items":                          items,
		"taxes":                          taxes,
	}
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
