package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPlayURL is returned when a short-form payload carries neither an
	// HD nor an SD play URL.
	ErrNoPlayURL = errors.New("no play url in provider payload")

	// ErrMissingPayload is returned when a download job claims IsTikTok but
	// carries no provider payload to act on.
	ErrMissingPayload = errors.New("tiktok job requires provider payload")

	// ErrOutputMissing is returned when the extraction tool exited cleanly
	// but no output artifact was found. Reported distinctly from a non-zero
	// exit so operators can tell the two failure modes apart.
	ErrOutputMissing = errors.New("expected output file not found")
)

// Attempt records one failed provider try inside a resolution chain.
type Attempt struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// ResolutionError is the terminal failure of a whole provider chain. It keeps
// every attempt's failure reason for observability instead of discarding them.
type ResolutionError struct {
	URL      string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, a.Provider+": "+a.Reason)
	}
	return fmt.Sprintf("no provider could resolve %s (%s)", e.URL, strings.Join(reasons, "; "))
}

// SubprocessError is a non-zero exit of the extraction tool. Command and
// Stderr are retained verbatim for the diagnostic endpoints; they are operator
// data, not user data.
type SubprocessError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("subprocess failed: %v (command: %s)", e.Err, e.Command)
}

func (e *SubprocessError) Unwrap() error { return e.Err }
