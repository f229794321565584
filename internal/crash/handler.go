package crash

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"tg-groupguard/internal/logger"
)

// RecoverWithStack recovers from a panic and logs the full stack trace.
// Intended to be deferred at the top of long-running goroutines.
func RecoverWithStack(moduleName string) {
	if r := recover(); r != nil {
		stack := debug.Stack()

		logger.Errorf("PANIC in %s: %v", moduleName, r)
		logger.Errorf("Stack trace:\n%s", string(stack))

		// Also write to stderr so container logs capture it even if the
		// file logger is broken.
		fmt.Fprintf(os.Stderr, "[PANIC] %s - %s: %v\n", time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

		logRuntimeInfo()
	}
}

// RecoverWithStackAndExit recovers, logs and exits non-zero so that the
// container orchestrator notices the crash.
func RecoverWithStackAndExit(moduleName string) {
	if r := recover(); r != nil {
		stack := debug.Stack()

		logger.Errorf("FATAL PANIC in %s: %v", moduleName, r)
		logger.Errorf("Stack trace:\n%s", string(stack))

		fmt.Fprintf(os.Stderr, "[FATAL PANIC] %s - %s: %v\n", time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

		logRuntimeInfo()

		// Give the log writer a moment to flush.
		time.Sleep(1 * time.Second)

		os.Exit(1)
	}
}

// SafeGoroutine starts a goroutine with panic recovery.
func SafeGoroutine(name string, fn func()) {
	go func() {
		defer RecoverWithStack(fmt.Sprintf("goroutine-%s", name))
		fn()
	}()
}

// logRuntimeInfo records runtime statistics to aid post-crash debugging.
func logRuntimeInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := fmt.Sprintf(`
Runtime Information:
- Go version: %s
- Number of CPUs: %d
- Number of goroutines: %d
- Memory stats:
  - Heap allocated: %d KB
  - Heap in use: %d KB
  - Stack in use: %d KB
  - Next GC: %d KB
  - Num GC: %d
`,
		runtime.Version(),
		runtime.NumCPU(),
		runtime.NumGoroutine(),
		bToKb(m.HeapAlloc),
		bToKb(m.HeapInuse),
		bToKb(m.StackInuse),
		bToKb(m.NextGC),
		m.NumGC,
	)

	logger.Errorf("%s", info)
	fmt.Fprint(os.Stderr, info)
}

func bToKb(b uint64) uint64 {
	return b / 1024
}
