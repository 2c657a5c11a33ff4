package runtime

import (
	"context"
	"fmt"

	"github.com/aegis-run/poolrt/internal/worker"
	"github.com/aegis-run/poolrt/pkg/abi"
	"github.com/aegis-run/poolrt/pkg/types"
)

// DefaultExecutorFactory builds a Thread's Executor by round-tripping
// the job payload through the scalar ABI boundary (pkg/abi) and
// handing the lifted object straight back as the result. The
// sandboxed compute module that would actually run between lowering
// and lifting is out of scope; this factory is the stand-in a real
// deployment replaces with one that calls into that module.
func DefaultExecutorFactory() worker.ExecutorFactory {
	return func(model types.ModelName) (worker.Executor, error) {
		return worker.FuncExecutor(func(ctx context.Context, jobName string, data any) (any, error) {
			obj, ok := data.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("runtime: job %q data must be a JSON object to cross the ABI boundary, got %T", jobName, data)
			}
			pairs := abi.ToPairs(obj)
			return abi.FromPairs(pairs), nil
		}), nil
	}
}
