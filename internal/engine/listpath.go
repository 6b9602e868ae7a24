package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

var listPaths sync.Map // query text -> *gojq.Code

func compileListPath(query string) (*gojq.Code, error) {
	if code, ok := listPaths.Load(query); ok {
		return code.(*gojq.Code), nil
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parse listPath %q: %w", query, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("compile listPath %q: %w", query, err)
	}
	listPaths.Store(query, code)
	return code, nil
}

// applyListPath runs a page's listPath over a read reply so backends that nest
// their rows elsewhere still yield a list. Only the first result is used.
func applyListPath(query string, data any) (any, error) {
	if query == "" {
		return data, nil
	}
	code, err := compileListPath(query)
	if err != nil {
		return nil, err
	}
	// gojq only accepts JSON-shaped values.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode reply for listPath: %w", err)
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decode reply for listPath: %w", err)
	}

	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("listPath %q: %w", query, err)
	}
	return v, nil
}
