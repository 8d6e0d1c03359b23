package cron

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	triggerSeparator       = ";"
	operationSeparator     = ":"
	operationListSeparator = ","
)

// TriggerSpec is a cron schedule and the operations it runs, in order.
type TriggerSpec struct {
	Operations []string
	Schedule   string
}

// ParseTriggerSpecs parses the command line form of a set of triggers:
//
//	"bootstrap:0 2 * * *;stop_frontend,start_frontend:30 3 * * 0"
//
// Every operation must be in available.
func ParseTriggerSpecs(spec string, available []string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, raw := range strings.Split(spec, triggerSeparator) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ops, schedule, ok := strings.Cut(raw, operationSeparator)
		if !ok || strings.Contains(schedule, operationSeparator) {
			return nil, fmt.Errorf("invalid trigger spec: expected format 'operations:cron', got '%s'", raw)
		}
		ts := TriggerSpec{Schedule: strings.TrimSpace(schedule)}
		for _, op := range strings.Split(ops, operationListSeparator) {
			if op = strings.TrimSpace(op); op != "" {
				ts.Operations = append(ts.Operations, op)
			}
		}
		if err := ts.Validate(available); err != nil {
			return nil, fmt.Errorf("invalid trigger spec '%s': %w", raw, err)
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

// Validate checks the schedule parses and every operation is known and listed once.
func (ts TriggerSpec) Validate(available []string) error {
	if len(ts.Operations) == 0 {
		return errors.New("no operations")
	}
	if ts.Schedule == "" {
		return errors.New("missing cron schedule")
	}
	seen := make(map[string]bool, len(ts.Operations))
	for _, op := range ts.Operations {
		if seen[op] {
			return fmt.Errorf("duplicate operation '%s'", op)
		}
		seen[op] = true
		if !slices.Contains(available, op) {
			return fmt.Errorf("unknown operation '%s'", op)
		}
	}
	if _, err := parser.Parse(ts.Schedule); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}
	return nil
}

func (ts TriggerSpec) String() string {
	return strings.Join(ts.Operations, operationListSeparator) + operationSeparator + ts.Schedule
}
