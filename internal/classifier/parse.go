package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/testvault/portal/internal/models"
)

// ErrUnparseableCompletion is returned when the model output does not contain
// a valid classification object. Callers recover with the fallback rule table.
var ErrUnparseableCompletion = errors.New("classifier: unparseable model output")

// parseCompletion extracts the classification JSON from a model completion.
// Models occasionally wrap the object in a code fence or prose; the parser
// takes the outermost braces and rejects anything that does not decode to the
// fixed schema.
func parseCompletion(content string) (models.ClassificationResult, error) {
	var result models.ClassificationResult

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start < 0 || end <= start {
		return result, ErrUnparseableCompletion
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("%w: %s", ErrUnparseableCompletion, err)
	}

	result.Intent = strings.TrimSpace(result.Intent)
	if result.Intent == "" {
		return result, fmt.Errorf("%w: missing intent", ErrUnparseableCompletion)
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	} else if result.Confidence > 1 {
		result.Confidence = 1
	}

	if result.Filters == nil {
		result.Filters = map[string]string{}
	}

	result.SemanticQuery = strings.TrimSpace(result.SemanticQuery)

	return result, nil
}
