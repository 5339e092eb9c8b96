package checkout

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Permissive RFC-like pattern for contact emails.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Stricter pattern for linked-account emails: restricted local part,
// dotted domain, alphabetic TLD of at least two characters.
var linkedEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}$`)

// Suspected typo domains and their likely intended spelling. Matching one
// produces an advisory warning, never a hard error.
var typoDomains = map[string]string{
	"gmial.com":   "gmail.com",
	"gamil.com":   "gmail.com",
	"gmal.com":    "gmail.com",
	"gmaill.com":  "gmail.com",
	"hotmial.com": "hotmail.com",
	"hotmal.com":  "hotmail.com",
	"outlok.com":  "outlook.com",
	"yaho.com":    "yahoo.com",
}

// maxNameLength is the longest accepted cardholder name, in runes.
const maxNameLength = 50

// FieldState is the user-visible validation state of one field.
type FieldState struct {
	Value   string
	Touched bool
	Error   string // hard error, blocks payability
	Warning string // advisory, shown but never blocks
}

type fieldEntry struct {
	FieldState
	gen       uint64 // bumped on every keystroke
	validated uint64 // generation of the last applied validation
}

// Gate decides whether the entered fields make the checkout payable.
//
// Validation is recomputed on every keystroke but runs off the synchronous
// input path through a scheduler, so typing is never blocked on it. Each
// field carries a generation counter; a freshly started validation
// invalidates any earlier pending validation for the same field, and a
// stale validation's result is discarded rather than applied.
type Gate struct {
	mu       sync.Mutex
	logger   *slog.Logger
	schedule func(func())
	fields   map[Field]*fieldEntry
	required []Field
	onChange func()
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// WithScheduler sets the function used to defer validation work off the
// input path. The default runs validations on their own goroutine; tests
// can pass an inline scheduler for determinism.
func WithScheduler(schedule func(func())) GateOption {
	return func(g *Gate) { g.schedule = schedule }
}

// WithGateOnChange registers a callback invoked whenever payability may
// have changed.
func WithGateOnChange(fn func()) GateOption {
	return func(g *Gate) { g.onChange = fn }
}

// NewGate creates a validation gate requiring the given fields.
func NewGate(required []Field, opts ...GateOption) *Gate {
	g := &Gate{
		logger:   slog.Default(),
		schedule: func(fn func()) { go fn() },
		fields:   make(map[Field]*fieldEntry),
		required: required,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetRequired replaces the required-field set, e.g. after the activation
// type changed. Fields dropped from the set keep their entered values but
// stop affecting payability.
func (g *Gate) SetRequired(required []Field) {
	g.mu.Lock()
	g.required = required
	g.mu.Unlock()
	g.notify()
}

// SetField records a keystroke and schedules deferred validation for the
// field. The synchronous path only stores the value and bumps the
// generation; the validation result is applied later, and only if no
// newer keystroke superseded it.
func (g *Gate) SetField(f Field, value string) {
	g.mu.Lock()
	e, ok := g.fields[f]
	if !ok {
		e = &fieldEntry{}
		g.fields[f] = e
	}
	e.Value = value
	e.Touched = true
	e.gen++
	gen := e.gen
	g.mu.Unlock()

	g.schedule(func() { g.validate(f, value, gen) })
}

// validate runs the field rules and applies the result unless a newer
// keystroke has invalidated this validation.
func (g *Gate) validate(f Field, value string, gen uint64) {
	errMsg, warnMsg := validateField(f, value)

	g.mu.Lock()
	e, ok := g.fields[f]
	if !ok || e.gen != gen {
		g.mu.Unlock()
		return
	}
	e.Error = errMsg
	e.Warning = warnMsg
	e.validated = gen
	g.mu.Unlock()

	g.notify()
}

// validateField applies the per-field rules and returns a hard error
// message and an advisory warning, either of which may be empty.
func validateField(f Field, value string) (errMsg, warnMsg string) {
	switch f {
	case FieldName:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return "name is required", ""
		}
		if utf8.RuneCountInString(trimmed) > maxNameLength {
			return fmt.Sprintf("name must be %d characters or fewer", maxNameLength), ""
		}
	case FieldEmail:
		if !emailPattern.MatchString(value) {
			return "enter a valid email address", ""
		}
	case FieldLinkedEmail:
		if !linkedEmailPattern.MatchString(value) || strings.Contains(value, "..") {
			return "enter a valid account email address", ""
		}
		at := strings.LastIndex(value, "@")
		domain := strings.ToLower(value[at+1:])
		if intended, ok := typoDomains[domain]; ok {
			return "", fmt.Sprintf("did you mean @%s?", intended)
		}
	}
	return "", ""
}

// Field returns a snapshot of one field's state.
func (g *Gate) Field(f Field) FieldState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.fields[f]; ok {
		return e.FieldState
	}
	return FieldState{}
}

// IsPayable reports whether every required field is present, validated,
// and free of hard errors. A field whose latest keystroke has not been
// validated yet keeps the gate closed; advisory warnings do not.
func (g *Gate) IsPayable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.required {
		e, ok := g.fields[f]
		if !ok || e.Value == "" {
			return false
		}
		if e.validated != e.gen {
			return false
		}
		if e.Error != "" {
			return false
		}
	}
	return true
}

// Clear resets all field state, e.g. on checkout teardown.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.fields = make(map[Field]*fieldEntry)
	g.mu.Unlock()
	g.notify()
}

func (g *Gate) notify() {
	if g.onChange != nil {
		g.onChange()
	}
}
