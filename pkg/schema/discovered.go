// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import (
	"mime"
	"sort"
)

// discoveredHandlerMetadata is the computed handler schema derived from a
// raw ProposedHandler, before it is stored under a ComponentSchemas.
type discoveredHandlerMetadata struct {
	name   string
	ty     HandlerType
	input  []InputRule
	output []OutputRule
}

// computeHandlers turns a proposed component's raw handler payloads into the
// HandlerSchemas map that will be stored in the catalog, applying handler
// type defaults and deriving input/output validation rules from the
// discovered content types.
func computeHandlers(componentTy ComponentType, proposed []ProposedHandler) (map[string]HandlerSchemas, error) {
	handlers := make(map[string]HandlerSchemas, len(proposed))
	for _, h := range proposed {
		dm, err := computeOneHandler(componentTy, h)
		if err != nil {
			return nil, err
		}
		handlers[dm.name] = HandlerSchemas{
			Name: dm.name,
			TargetMeta: TargetMetadata{
				Public:      true,
				ComponentTy: componentTy,
				HandlerTy:   dm.ty,
				InputRules:  dm.input,
				OutputRules: dm.output,
			},
		}
	}
	return handlers, nil
}

func computeOneHandler(componentTy ComponentType, h ProposedHandler) (discoveredHandlerMetadata, error) {
	ty := DefaultHandlerType(componentTy)
	if h.HandlerType != nil {
		ty = *h.HandlerType
	}

	input, err := computeInputRules(h)
	if err != nil {
		return discoveredHandlerMetadata{}, err
	}
	output, err := computeOutputRules(h)
	if err != nil {
		return discoveredHandlerMetadata{}, err
	}

	return discoveredHandlerMetadata{name: h.Name, ty: ty, input: input, output: output}, nil
}

func computeInputRules(h ProposedHandler) ([]InputRule, error) {
	var rules []InputRule
	if !h.InputRequired {
		rules = append(rules, InputRule{Kind: InputRuleNoBodyAndContentType})
	}

	contentType := h.InputContentType
	if contentType != "" {
		if _, _, err := mime.ParseMediaType(contentType); err != nil {
			return nil, &BadInputContentTypeError{Handler: h.Name, Cause: err}
		}
	}

	if h.HasJSONSchema {
		rules = append(rules, InputRule{Kind: InputRuleJSONValue, ContentType: contentType})
	} else {
		rules = append(rules, InputRule{Kind: InputRuleContentType, ContentType: contentType})
	}
	return rules, nil
}

func computeOutputRules(h ProposedHandler) ([]OutputRule, error) {
	if h.OutputContentType == "" {
		return []OutputRule{{Kind: OutputContentTypeNone}}, nil
	}
	if _, _, err := mime.ParseMediaType(h.OutputContentType); err != nil {
		return nil, &BadOutputContentTypeError{ContentType: h.OutputContentType, Cause: err}
	}
	return []OutputRule{{
		Kind:                  OutputContentTypeSet,
		ContentType:           h.OutputContentType,
		SetContentTypeIfEmpty: true,
		HasJSONSchema:         h.HasJSONSchema,
	}}, nil
}

// removedHandlers returns the handler names present in existing but absent
// from proposed, sorted for deterministic error messages.
func removedHandlers(existing, proposed map[string]HandlerSchemas) []string {
	var removed []string
	for name := range existing {
		if _, ok := proposed[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}
