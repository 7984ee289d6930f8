package main

import "github.com/chzyer/readline"

// lineReader is the thin wrapper the REPL drives; kept as its own type so
// main.go's loop doesn't depend on readline's package name directly.
type lineReader struct {
	rl *readline.Instance
}

func newLineReader() (*lineReader, error) {
	rl, err := readline.New("mica> ")
	if err != nil {
		return nil, err
	}
	return &lineReader{rl: rl}, nil
}

func (l *lineReader) Readline() (string, error) {
	return l.rl.Readline()
}

func (l *lineReader) Close() error {
	return l.rl.Close()
}

// isInterrupt reports whether err is readline's ctrl-c sentinel, which the
// REPL treats as "clear the current line" rather than "exit".
func isInterrupt(err error) bool {
	return err == readline.ErrInterrupt
}
