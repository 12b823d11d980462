package history

import (
	"strings"

	"gwasm-client/internal/database"
)

// Filter matches recorded task runs; filters are built from history query
// expressions by ParseQuery.
type Filter interface {
	Matches(run *database.TaskRun) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(run *database.TaskRun) bool {
	for _, filter := range f.filters {
		if !filter.Matches(run) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(run *database.TaskRun) bool {
	for _, filter := range f.filters {
		if filter.Matches(run) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(run *database.TaskRun) bool {
	return !f.filter.Matches(run)
}

// MatchAll accepts every run; a List with no query uses it.
type MatchAll struct{}

func (MatchAll) Matches(*database.TaskRun) bool { return true }

// stringField extracts the queryable string fields of a run.
func stringField(run *database.TaskRun, field string) (string, bool) {
	switch field {
	case "name":
		return run.Name, true
	case "status":
		return run.Status, true
	case "network":
		return run.Network, true
	case "task_id":
		return run.TaskId, true
	case "workspace":
		return run.Workspace, true
	case "error":
		return run.Error.String, true
	default:
		return "", false
	}
}

// numberField extracts the queryable numeric fields of a run.
func numberField(run *database.TaskRun, field string) (float64, bool) {
	switch field {
	case "bid":
		return run.Bid, true
	case "progress":
		return run.Progress, true
	case "subtasks":
		return float64(run.SubtaskCount), true
	default:
		return 0, false
	}
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(run *database.TaskRun) bool {
	value, ok := stringField(run, f.field)
	return ok && strings.Contains(value, f.substr)
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(run *database.TaskRun) bool {
	value, ok := stringField(run, f.field)
	return ok && value == f.value
}

type StringLtFilter struct {
	field string
	value string
}

func (f *StringLtFilter) Matches(run *database.TaskRun) bool {
	value, ok := stringField(run, f.field)
	return ok && value < f.value
}

type StringGtFilter struct {
	field string
	value string
}

func (f *StringGtFilter) Matches(run *database.TaskRun) bool {
	value, ok := stringField(run, f.field)
	return ok && value > f.value
}

type NumberEqFilter struct {
	field string
	value float64
}

func (f *NumberEqFilter) Matches(run *database.TaskRun) bool {
	value, ok := numberField(run, f.field)
	return ok && value == f.value
}

type NumberLtFilter struct {
	field string
	value float64
}

func (f *NumberLtFilter) Matches(run *database.TaskRun) bool {
	value, ok := numberField(run, f.field)
	return ok && value < f.value
}

type NumberGtFilter struct {
	field string
	value float64
}

func (f *NumberGtFilter) Matches(run *database.TaskRun) bool {
	value, ok := numberField(run, f.field)
	return ok && value > f.value
}
