package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
)

var errLocalMode = errors.New("local LLM mode is not implemented")

// LocalProvider fails every call, so offline runs exercise the degraded paths.
type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return "", errLocalMode
}

func (LocalProvider) GenerateStructured(ctx context.Context, messages []Message, shape *schema.Schema) (json.RawMessage, error) {
	return nil, errLocalMode
}
