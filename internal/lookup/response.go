package lookup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/evcraddock/property-sync/internal/apperr"
)

// Message codes returned in the <message><code> block.
const (
	codeSuccess = "0"
)

var (
	invalidRequestCodes = map[string]bool{"500": true, "501": true, "506": true}
	noMatchCodes        = map[string]bool{"502": true, "503": true, "504": true, "507": true, "508": true}
	timeoutCodes        = map[string]bool{"505": true}
)

// parseTree decodes an XML document into nested maps rooted at the
// document element's children. Attributes are ignored.
func parseTree(raw []byte) (map[string]any, error) {
	type node struct {
		name     string
		children map[string]any
		text     strings.Builder
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var stack []*node
	var root map[string]any

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, &node{name: t.Name.Local, children: map[string]any{}})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			var v any = strings.TrimSpace(n.text.String())
			if len(n.children) > 0 {
				v = n.children
			}

			if len(stack) == 0 {
				root = n.children
				continue
			}
			addChild(stack[len(stack)-1].children, n.name, v)
		}
	}

	if root == nil {
		return nil, errors.New("no xml document element")
	}
	return root, nil
}

// addChild stores v under name, turning repeated siblings into a slice.
func addChild(parent map[string]any, name string, v any) {
	existing, ok := parent[name]
	if !ok {
		parent[name] = v
		return
	}
	if list, ok := existing.([]any); ok {
		parent[name] = append(list, v)
		return
	}
	parent[name] = []any{existing, v}
}

// checkMessage classifies the service's status block.
func checkMessage(tree map[string]any) error {
	msg, ok := tree["message"].(map[string]any)
	if !ok {
		return apperr.New(apperr.KindServiceError, "decode", "response has no message block")
	}

	code, _ := msg["code"].(string)
	text, _ := msg["text"].(string)

	switch {
	case code == codeSuccess:
		return nil
	case invalidRequestCodes[code]:
		return apperr.New(apperr.KindInvalidRequest, code, text)
	case noMatchCodes[code]:
		return apperr.New(apperr.KindNoMatch, code, text)
	case timeoutCodes[code]:
		return apperr.New(apperr.KindTimeout, code, text)
	default:
		return apperr.New(apperr.KindServiceError, code, text)
	}
}

// deepSearchResult selects the first <result> of a deep search reply.
func deepSearchResult(tree map[string]any) (map[string]any, bool) {
	resp, ok := tree["response"].(map[string]any)
	if !ok {
		return nil, false
	}
	results, ok := resp["results"].(map[string]any)
	if !ok {
		return nil, false
	}
	return firstMap(results["result"])
}

// updatedDetailsResult selects the <response> of an updated details reply.
func updatedDetailsResult(tree map[string]any) (map[string]any, bool) {
	return firstMap(tree["response"])
}

func firstMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}
