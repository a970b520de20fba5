// Package prescreen provides the CEL-based deterministic screening
// engine. Rules run before any model call and annotate the feature map
// handed to the ensemble with derived risk signals, so cheap structural
// checks inform the models without changing the fusion arithmetic.
package prescreen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rule is a deterministic screening check. Expression must evaluate to
// a boolean; when true, Signal is attached to the transaction's derived
// signals.
type Rule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Signal     string `json:"signal"`
	Enabled    bool   `json:"enabled"`
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    Rule
	Program cel.Program
}

// Engine compiles rules once and evaluates them against transactions.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// NewEngine creates a screening engine with the transaction variables
// bound into the CEL environment.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(r)
	if err != nil {
		return err
	}
	e.compiledRules[r.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []Rule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Screen evaluates all loaded rules against the transaction and returns
// the derived signals of the rules that fired, in stable rule-ID order.
// A rule that errors at evaluation time is skipped; screening never
// fails the analysis.
func (e *Engine) Screen(ctx context.Context, tx *domain.Transaction, velocityCount int64) []string {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"amount":            tx.Amount,
		"currency":          tx.Currency,
		"tx_type":           string(tx.Type),
		"merchant_category": tx.MerchantCategory,
		"location":          tx.Location,
		"hour":              int64(tx.Timestamp.UTC().Hour()),
		"velocity_count":    velocityCount,
	}

	fired := make([]bool, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			out, _, err := r.Program.Eval(activation)
			if err != nil {
				return
			}
			fired[idx] = toBool(out)
		}(i, rule)
	}

	wg.Wait()

	var signals []string
	seen := make(map[string]bool)
	for _, idx := range sortedByID(rules) {
		if fired[idx] && !seen[rules[idx].Rule.Signal] {
			seen[rules[idx].Rule.Signal] = true
			signals = append(signals, rules[idx].Rule.Signal)
		}
	}
	return signals
}

// Annotate merges the derived signals into a feature map copy. The
// original map is never mutated.
func Annotate(features map[string]interface{}, signals []string) map[string]interface{} {
	if len(signals) == 0 {
		return features
	}
	out := make(map[string]interface{}, len(features)+1)
	for k, v := range features {
		out[k] = v
	}
	out["derived_signals"] = signals
	return out
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules atomically replaces the loaded rule set.
func (e *Engine) ReloadRules(rules []Rule) error {
	newRules := make(map[string]*CompiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		newRules[r.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()
	return nil
}

func (e *Engine) compileRule(r Rule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}
	return &CompiledRule{Rule: r, Program: program}, nil
}

func toBool(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}

func sortedByID(rules []*CompiledRule) []int {
	idx := make([]int, len(rules))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return rules[idx[a]].Rule.ID < rules[idx[b]].Rule.ID
	})
	return idx
}
