package engine

import (
	"context"
	"fmt"

	"github.com/shaiso/Loom/internal/nodes"
)

// GroupPolicy — политика обработки ошибок параллельной группы.
type GroupPolicy string

const (
	// GroupPolicyFailFast — первая ошибка отменяет остальных детей,
	// группа завершается немедленно.
	GroupPolicyFailFast GroupPolicy = "fail_fast"

	// GroupPolicyContinue — группа дожидается всех детей и собирает
	// все ошибки разом.
	GroupPolicyContinue GroupPolicy = "continue"
)

// ParseGroupPolicy разбирает политику группы из параметра узла.
// Пустая строка означает политику по умолчанию fail_fast.
func ParseGroupPolicy(s string) (GroupPolicy, error) {
	switch GroupPolicy(s) {
	case "":
		return GroupPolicyFailFast, nil
	case GroupPolicyFailFast, GroupPolicyContinue:
		return GroupPolicy(s), nil
	default:
		return "", fmt.Errorf("неизвестная политика группы %q", s)
	}
}

// RunGroup выполняет детей группы параллельно с ограничением
// одновременности maxConcurrency (0 и меньше — без ограничения).
//
// Возвращает результаты и ошибки, индексированные позицией ребёнка.
// При fail_fast возврат происходит сразу после первой ошибки: остальным
// детям отменяется контекст, их результаты отбрасываются, заполнена
// только ошибка упавшего ребёнка. При continue обе стороны заполняются
// для каждого индекса после завершения всех детей.
func RunGroup(ctx context.Context, ec *ExecContext, children []Executable, maxConcurrency int, policy GroupPolicy) ([]*nodes.Result, []error) {
	n := len(children)
	results := make([]*nodes.Result, n)
	errs := make([]error, n)
	if n == 0 {
		return results, errs
	}
	if maxConcurrency <= 0 || maxConcurrency > n {
		maxConcurrency = n
	}

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx int
		res *nodes.Result
		err error
	}

	sem := make(chan struct{}, maxConcurrency)
	// Буфер на всех детей: после раннего возврата при fail_fast
	// горутины не блокируются на отправке.
	outCh := make(chan outcome, n)

	for i := range children {
		go func(idx int) {
			select {
			case sem <- struct{}{}:
			case <-groupCtx.Done():
				outCh <- outcome{idx: idx, err: groupCtx.Err()}
				return
			}
			defer func() { <-sem }()

			res, err := children[idx].Exec(groupCtx, ec)
			outCh <- outcome{idx: idx, res: res, err: err}
		}(i)
	}

	for received := 0; received < n; received++ {
		o := <-outCh
		results[o.idx] = o.res
		if o.err == nil {
			continue
		}
		errs[o.idx] = fmt.Errorf("дочерний узел %d (%s): %w", o.idx, children[o.idx].ID(), o.err)

		if policy == GroupPolicyFailFast {
			cancel()
			failed := make([]error, n)
			failed[o.idx] = errs[o.idx]
			return make([]*nodes.Result, n), failed
		}
	}
	return results, errs
}

// groupExec — составной узел параллельной группы.
//
// Дети проходят полную цепочку обёрток, поэтому их выходы попадают
// в Store под собственными namespace независимо от исхода группы.
type groupExec struct {
	id             string
	children       []Executable
	maxConcurrency int
	policy         GroupPolicy
}

func (g *groupExec) ID() string   { return g.id }
func (g *groupExec) Type() string { return NodeTypeParallel }

func (g *groupExec) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	results, errs := RunGroup(ctx, ec, g.children, g.maxConcurrency, g.policy)

	failures := make(map[int]error)
	for i, err := range errs {
		if err != nil {
			failures[i] = err
		}
	}
	if len(failures) > 0 {
		if g.policy == GroupPolicyFailFast {
			for _, err := range failures {
				return nil, err
			}
		}
		return nil, &GroupError{Failures: failures}
	}

	outputs := make(map[string]any, len(results))
	for i, res := range results {
		if res != nil {
			outputs[g.children[i].ID()] = res.Outputs
		}
	}
	return &nodes.Result{Action: nodes.ActionDefault, Outputs: outputs}, nil
}
