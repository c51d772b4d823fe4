// Package outcome defines replacement outcome records and the append-only
// log they are written to.
package outcome

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Kind is the terminal result of one replacement attempt sequence.
type Kind string

const (
	// KindReplaced means the bundle was backed up and overwritten.
	KindReplaced Kind = "REPLACED"
	// KindNotFoundAfterWait means the bundle was still missing after the
	// deferred check. Not an error; the operator has to follow up.
	KindNotFoundAfterWait Kind = "NOT_FOUND_AFTER_WAIT"
	// KindAlreadyUpToDate means the target already matched the source.
	KindAlreadyUpToDate Kind = "ALREADY_UP_TO_DATE"
	// KindNotPresent means a bulk run found no bundle and touched nothing.
	KindNotPresent Kind = "NOT_PRESENT"
	// KindFailed means a copy failed; the message carries the error.
	KindFailed Kind = "FAILED"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	KindReplaced,
	KindNotFoundAfterWait,
	KindAlreadyUpToDate,
	KindNotPresent,
	KindFailed,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Outcome is one immutable log record.
type Outcome struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Env     string    `json:"env"`
	Message string    `json:"message"`
}

// New creates an outcome stamped with now.
func New(now time.Time, kind Kind, env, message string) Outcome {
	return Outcome{Time: now, Kind: kind, Env: env, Message: message}
}

// Line renders the record as "<timestamp> <kind> <env> <message>\n".
// Env names containing whitespace are quoted; newlines in the message are
// folded so a record is always exactly one line.
func (o Outcome) Line() string {
	env := o.Env
	if env == "" || strings.IndexFunc(env, unicode.IsSpace) >= 0 || strings.HasPrefix(env, `"`) {
		env = strconv.Quote(env)
	}
	msg := strings.Join(strings.Fields(o.Message), " ")

	var b strings.Builder
	b.WriteString(o.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(string(o.Kind))
	b.WriteByte(' ')
	b.WriteString(env)
	if msg != "" {
		b.WriteByte(' ')
		b.WriteString(msg)
	}
	b.WriteByte('\n')
	return b.String()
}

// Parse reads one line produced by Line.
func Parse(line string) (Outcome, error) {
	line = strings.TrimRight(line, "\r\n")

	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Outcome{}, fmt.Errorf("parse outcome %q: missing kind", line)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse outcome timestamp: %w", err)
	}

	kind, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return Outcome{}, fmt.Errorf("parse outcome %q: missing environment", line)
	}
	if !Kind(kind).Valid() {
		return Outcome{}, fmt.Errorf("parse outcome: unknown kind %q", kind)
	}
	if rest == "" {
		return Outcome{}, fmt.Errorf("parse outcome %q: missing environment", line)
	}

	var env string
	if strings.HasPrefix(rest, `"`) {
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return Outcome{}, fmt.Errorf("parse outcome environment: %w", err)
		}
		env, _ = strconv.Unquote(quoted)
		rest = strings.TrimPrefix(rest[len(quoted):], " ")
	} else {
		env, rest, _ = strings.Cut(rest, " ")
	}
	return Outcome{Time: t, Kind: Kind(kind), Env: env, Message: rest}, nil
}
