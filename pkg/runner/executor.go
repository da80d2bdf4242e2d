package runner

import (
	"context"
	"fmt"

	"github.com/stepwise-qa/stepwise/pkg/scripts"
)

// execute invokes a resolved test function and normalizes its outcome.
// A panic inside the function becomes a returncode 2 result; a nil
// result is replaced with a synthetic failure. The engine never sees a
// malformed result and never unwinds past the step boundary.
func execute(ctx context.Context, fn scripts.Func, functionName string, params map[string]any) (res *scripts.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = &scripts.Result{
				Stderr:     fmt.Sprintf("Execution error: %v", r),
				Exception:  fmt.Sprint(r),
				ReturnCode: scripts.CodeError,
			}
		}
	}()

	res = fn(ctx, params)
	if res == nil {
		res = &scripts.Result{
			Exception:  fmt.Sprintf("Invalid result structure from %s", functionName),
			ReturnCode: scripts.CodeError,
		}
	}
	return res
}
