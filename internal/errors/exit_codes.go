package errors

// ExitCode is the process status crmassist exits with. Scripts running
// `crmassist check --exit-code` rely on these values staying stable.
type ExitCode int

const (
	ExitSuccess         ExitCode = iota // 0
	ExitGeneralError                    // 1
	ExitConfigError                     // 2: config file, env var or flag
	ExitValidationError                 // 3: bad entity reference or tool arguments
	ExitProviderError                   // 4: upstream LLM failure
	ExitAuthError                       // 5: provider rejected the API key
	ExitRateLimited                     // 6
	ExitStoreError                      // 7: conversation store unreachable or id unknown
	ExitToolError                       // 8
)

var exitCodeNames = [...]string{
	"success", "error", "config", "validation", "provider",
	"auth", "rate_limited", "store", "tool",
}

func (e ExitCode) Int() int { return int(e) }

// String names the code, e.g. "auth"
func (e ExitCode) String() string {
	if e >= 0 && int(e) < len(exitCodeNames) {
		return exitCodeNames[e]
	}
	return "unknown"
}
