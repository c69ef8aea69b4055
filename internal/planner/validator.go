package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
)

// ErrInvalidPlan marks a plan rejected by VerifyPlan.
var ErrInvalidPlan = errors.New("invalid plan")

// ValidationError describes one defect of a plan.
type ValidationError struct {
	Index   int
	Task    TaskType
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("task %d (%s): %s", e.Index, e.Task, e.Message)
}

// ValidationErrors aggregates defects. It matches ErrInvalidPlan and
// llm.ErrSchema so repair loops send the plan back for correction.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidPlan, strings.Join(parts, "; "))
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrInvalidPlan || target == llm.ErrSchema
}

// VerifyPlan checks that every task type is known (when known is non-nil)
// and that every "in" reference names an output produced by an earlier task.
// Order is never changed.
func VerifyPlan(tasks []SubTask, known func(TaskType) bool) error {
	if len(tasks) == 0 {
		return ValidationErrors{{Index: 0, Message: "plan is empty"}}
	}
	var problems ValidationErrors
	produced := make(map[string]int, len(tasks))
	for i, task := range tasks {
		if task.Task == "" {
			problems = append(problems, ValidationError{Index: i, Message: "task type is empty"})
		} else if known != nil && !known(task.Task) {
			problems = append(problems, ValidationError{Index: i, Task: task.Task, Message: "unknown task type"})
		}
		if ref, ok := task.In(); ok {
			if _, seen := produced[ref]; !seen {
				msg := fmt.Sprintf("reads %q before any task produces it", ref)
				if later := producerAfter(tasks, i, ref); later >= 0 {
					msg = fmt.Sprintf("reads %q which is only produced later by task %d", ref, later)
				}
				problems = append(problems, ValidationError{Index: i, Task: task.Task, Message: msg})
			}
		} else if task.Args.Has(RefKey) {
			problems = append(problems, ValidationError{Index: i, Task: task.Task, Message: `"in" must be a non-empty string`})
		}
		if task.Out != "" {
			produced[task.Out] = i
		}
	}
	if len(problems) > 0 {
		return problems
	}
	return nil
}

func producerAfter(tasks []SubTask, i int, ref string) int {
	for j := i; j < len(tasks); j++ {
		if tasks[j].Out == ref {
			return j
		}
	}
	return -1
}
