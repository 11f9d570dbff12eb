package mpd

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
)

// Command handles one or more protocol verbs.
type Command interface {
	Verbs() []string
	Execute(ctx context.Context, req Request) ([]string, error)
}

// Request is one parsed command line.
type Request struct {
	Verb string
	// Arg is the first argument with surrounding quotes removed, or the
	// whole unquoted remainder of the line.
	Arg string
	// Args holds every argument, tokenized with MPD quoting rules.
	Args []string
}

var argPattern = regexp.MustCompile(`\s+"?([^"]*)"?`)

var errUnterminatedQuote = errors.New("missing closing '\"'")

func parseRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	verb, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		verb, rest = line[:i], line[i:]
	}

	req := Request{Verb: verb}
	if m := argPattern.FindStringSubmatch(rest); m != nil {
		req.Arg = strings.TrimSpace(m[1])
	}

	args, err := tokenize(rest)
	if err != nil {
		return req, newAck(AckErrorArg, verb, "%s", err)
	}
	req.Args = args
	return req, nil
}

func tokenize(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errUnterminatedQuote
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

type registration struct {
	cmd        Command
	subsystems []string
}

// Registry maps verbs to commands. Each command declares the subsystems a
// successful execution changes.
type Registry struct {
	commands map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]registration)}
}

func (r *Registry) Register(cmd Command, subsystems ...string) {
	for _, verb := range cmd.Verbs() {
		r.commands[verb] = registration{cmd: cmd, subsystems: subsystems}
	}
}

func (r *Registry) Lookup(verb string) (Command, []string, bool) {
	reg, ok := r.commands[verb]
	if !ok {
		return nil, nil, false
	}
	return reg.cmd, reg.subsystems, true
}

func (r *Registry) Verbs() []string {
	verbs := make([]string, 0, len(r.commands))
	for verb := range r.commands {
		verbs = append(verbs, verb)
	}
	slices.Sort(verbs)
	return verbs
}
