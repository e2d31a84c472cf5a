package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/labdepot/labdepot/internal/notify/events"
	"github.com/labdepot/labdepot/pkg/model"
)

// Config configures an Evaluator.
type Config struct {
	// Cooldown is passed to every ThresholdConfig.
	Cooldown time.Duration `yaml:"cooldown"`

	// Guard is an optional CEL expression over `item` and `event` that
	// must evaluate to true for a draft to be produced, e.g.
	// `item.category == "consumable"`.
	Guard string `yaml:"guard"`
}

// Evaluator turns change events into drafts.
type Evaluator struct {
	cfg Config
	env *cel.Env

	prgCache   map[string]cel.Program
	cacheMutex sync.RWMutex
}

// NewEvaluator compiles the guard, if any, so a bad expression fails at startup.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		cfg:      cfg,
		env:      env,
		prgCache: make(map[string]cel.Program),
	}
	if cfg.Guard != "" {
		if _, err := e.getProgram(cfg.Guard); err != nil {
			return nil, fmt.Errorf("invalid guard expression: %w", err)
		}
	}
	return e, nil
}

// Evaluate returns the draft for evt, or nil. An error means the event's
// full document could not be interpreted or the guard failed to evaluate.
func (e *Evaluator) Evaluate(evt *events.ChangeEvent) (*Draft, error) {
	cfg, err := e.threshold(evt)
	if cfg == nil || err != nil {
		return nil, err
	}

	draft := Decide(evt, *cfg)
	if draft == nil || e.cfg.Guard == "" {
		return draft, nil
	}

	ok, err := e.guard(evt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return draft, nil
}

// Rearm returns the recovery to record for evt, or nil. The guard does not
// apply: it only restricts which episodes are alerted.
func (e *Evaluator) Rearm(evt *events.ChangeEvent) (*Rearm, error) {
	cfg, err := e.threshold(evt)
	if cfg == nil || err != nil {
		return nil, err
	}
	return Recover(evt, *cfg), nil
}

func (e *Evaluator) threshold(evt *events.ChangeEvent) (*ThresholdConfig, error) {
	if evt == nil || evt.OperationType != events.OperationUpdate || evt.FullDocument == nil {
		return nil, nil
	}

	var item model.Item
	if err := model.DecodeDocument(evt.FullDocument, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", events.ErrMalformedChangeEvent, err)
	}
	if item.ID == "" {
		item.ID = evt.DocumentID
	}
	cfg := ThresholdFromItem(&item, e.cfg.Cooldown)
	return &cfg, nil
}

func (e *Evaluator) guard(evt *events.ChangeEvent) (bool, error) {
	prg, err := e.getProgram(e.cfg.Guard)
	if err != nil {
		return false, fmt.Errorf("failed to get CEL program: %w", err)
	}

	updated := evt.UpdatedFields
	if updated == nil {
		updated = []string{}
	}
	input := map[string]interface{}{
		"item": plainMap(evt.FullDocument),
		"event": map[string]interface{}{
			"operationType": string(evt.OperationType),
			"collection":    evt.Collection,
			"documentId":    evt.DocumentID,
			"updatedFields": updated,
			"observedAt":    evt.ObservedAt,
		},
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL guard must return boolean, got %T", out.Value())
	}
	return match, nil
}

func (e *Evaluator) getProgram(expr string) (cel.Program, error) {
	e.cacheMutex.RLock()
	prg, ok := e.prgCache[expr]
	e.cacheMutex.RUnlock()
	if ok {
		return prg, nil
	}

	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()

	if prg, ok := e.prgCache[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.prgCache[expr] = prg
	return prg, nil
}

// plainMap strips the named Document type so CEL sees ordinary maps.
func plainMap(doc model.Document) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case model.Document:
		return plainMap(val)
	case map[string]interface{}:
		return plainMap(model.Document(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
