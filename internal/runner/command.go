package runner

import (
	"fmt"
	"os"

	"github.com/kballard/go-shellquote"
)

// Command is the fixed external analysis command. It is built from
// configuration only, never from request data.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string // extra KEY=VALUE pairs on top of the inherited environment
}

// NewCommand builds a Command from an argv slice.
func NewCommand(argv []string, dir string, env []string) (Command, error) {
	if len(argv) == 0 {
		return Command{}, fmt.Errorf("runner: empty command")
	}
	return Command{
		Path: argv[0],
		Args: argv[1:],
		Dir:  dir,
		Env:  env,
	}, nil
}

// ParseCommand splits a shell-style command line.
func ParseCommand(line, dir string, env []string) (Command, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("runner: parse command: %w", err)
	}
	return NewCommand(argv, dir, env)
}

// String renders the command line with shell quoting.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Path}, c.Args...)...)
}

// environ is the inherited environment plus an explicit PATH plus the
// configured extras. exec keeps the last value of duplicated keys.
func (c Command) environ() []string {
	env := os.Environ()
	env = append(env, "PATH="+os.Getenv("PATH"))
	return append(env, c.Env...)
}
