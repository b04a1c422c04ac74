package transactions

import (
	"bytes"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// applyPatch treats an array body as RFC 6902 operations and an object body
// as an RFC 7396 merge patch.
func applyPatch[T ~map[string]any](doc T, raw []byte) (map[string]any, error) {
	orig, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil, stacerr.Wrap(stacerr.Internal, err, "encode document")
	}

	body := bytes.TrimSpace(raw)
	var out []byte
	switch {
	case len(body) > 0 && body[0] == '[':
		p, err := jsonpatch.DecodePatch(body)
		if err != nil {
			return nil, stacerr.Validationf("Invalid JSON Patch: %v", err)
		}
		if out, err = p.Apply(orig); err != nil {
			return nil, stacerr.Validationf("JSON Patch could not be applied: %v", err)
		}
	case len(body) > 0 && body[0] == '{':
		if out, err = jsonpatch.MergePatch(orig, body); err != nil {
			return nil, stacerr.Validationf("Invalid merge patch: %v", err)
		}
	default:
		return nil, stacerr.Validationf("Patch must be a list of operations or a partial object")
	}

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, stacerr.Wrap(stacerr.Internal, err, "decode patched document")
	}
	return m, nil
}
