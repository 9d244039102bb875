// Package tokens manages the tenant access tokens the workload
// scenarios authenticate with: a concurrency-safe pool read from a
// token file, plus helpers to mint or fetch the tokens that fill it.
package tokens

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Pool hands out access tokens to simulated users. Every user claims
// its own token, so a token handed out once is never handed out again.
type Pool struct {
	lock   sync.Mutex
	tokens []string
}

// NewPool returns a pool over the given tokens.
func NewPool(tokens []string) *Pool {
	return &Pool{tokens: tokens}
}

// FromFile loads a pool from a newline-delimited token file. Blank
// lines and surrounding whitespace are ignored.
func FromFile(path string) (*Pool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening token file: %w", err)
	}
	defer file.Close()

	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	return NewPool(tokens), nil
}

// WriteFile saves tokens in the newline-delimited format FromFile
// reads.
func WriteFile(path string, tokens []string) error {
	content := strings.Join(tokens, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Next pops the next unclaimed token. It reports false when the pool
// is exhausted. Safe for concurrent use.
func (p *Pool) Next() (string, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.tokens) == 0 {
		return "", false
	}
	token := p.tokens[0]
	p.tokens = p.tokens[1:]
	return token, true
}

// Remaining returns the number of unclaimed tokens.
func (p *Pool) Remaining() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.tokens)
}
