package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// evaluator caches compiled JMESPath expressions used to pick fields out of Graph payloads.
type evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func newEvaluator() *evaluator {
	return &evaluator{cache: make(map[string]*jmespath.JMESPath)}
}

func (e *evaluator) search(expression string, data any) (any, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		var err error
		compiled, err = jmespath.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
		}
		e.mu.Lock()
		e.cache[expression] = compiled
		e.mu.Unlock()
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (e *evaluator) searchString(expression string, data any) string {
	result, err := e.search(expression, data)
	if err != nil || result == nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", result)
}

// customerExpression selects the first participant that is not the page itself.
func customerExpression(pageID string) string {
	quoted := strings.ReplaceAll(pageID, `'`, `\'`)
	return fmt.Sprintf("participants.data[?id != '%s'] | [0]", quoted)
}

const avatarExpression = "picture.data.url"
