package core

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// Output routes user-facing text. In quiet mode informational lines are
// dropped; in JSON mode all text is suppressed and values set with Set are
// printed as one object by Flush.
type Output struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	quiet  bool
	json   bool
	doc    string
	errs   []string
}

// NewOutput creates an Output. CCB_QUIET also enables quiet mode.
func NewOutput(out, errOut io.Writer, quiet, jsonMode bool) *Output {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Output{
		out:    out,
		errOut: errOut,
		quiet:  quiet || osutil.EnvBool("CCB_QUIET", false),
		json:   jsonMode,
		doc:    "{}",
	}
}

func (o *Output) Quiet() bool { return o.quiet }
func (o *Output) JSON() bool  { return o.json }

// Writer returns the stream for informational text; it discards in quiet
// and JSON modes.
func (o *Output) Writer() io.Writer {
	if o.quiet || o.json {
		return io.Discard
	}
	return o.out
}

// Printf prints an informational line.
func (o *Output) Printf(format string, args ...any) {
	if o.quiet || o.json {
		return
	}
	fmt.Fprintf(o.out, format, args...)
}

// Result prints command output that quiet mode keeps, such as a reply.
func (o *Output) Result(text string) {
	if o.json {
		return
	}
	fmt.Fprintln(o.out, text)
}

// Error prints an error line, or collects it in JSON mode.
func (o *Output) Error(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.json {
		o.errs = append(o.errs, msg)
		return
	}
	fmt.Fprintln(o.errOut, msg)
}

// Set stores a value at an sjson path such as "codex.reply".
func (o *Output) Set(path string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc, err := sjson.Set(o.doc, path, value); err == nil {
		o.doc = doc
	}
}

// Append adds a value to the list at path.
func (o *Output) Append(path string, value any) {
	o.Set(path+".-1", value)
}

// Get returns the raw JSON stored at path.
func (o *Output) Get(path string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gjson.Get(o.doc, path).Raw
}

// Flush prints the collected object with success, exit_code and errors in
// JSON mode, and returns exitCode unchanged.
func (o *Output) Flush(exitCode int) int {
	if !o.json {
		return exitCode
	}
	o.Set("success", exitCode == 0)
	o.Set("exit_code", exitCode)
	o.mu.Lock()
	defer o.mu.Unlock()
	doc := o.doc
	if len(o.errs) > 0 {
		doc, _ = sjson.Set(doc, "errors", o.errs)
	}
	fmt.Fprintln(o.out, gjson.Get(doc, "@pretty").String())
	return exitCode
}

// SetError records err in the JSON object the way FormatError prints it.
func (o *Output) SetError(err error) {
	code := ExitCodeFor(err)
	o.Set("error_code", code)
	o.Set("error_name", CodeName(code))
	o.Set("error_message", CodeMessage(code))
	if s := CodeSuggestion(code); s != "" {
		o.Set("error_suggestion", s)
	}
	if err != nil {
		o.Set("error_detail", err.Error())
	}
}
