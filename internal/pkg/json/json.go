package json

import "github.com/bytedance/sonic"

// api mirrors encoding/json output so files written here stay readable by
// any other JSON tooling.
var api = sonic.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	CopyString:  true,
}.Froze()

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}
