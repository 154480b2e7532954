package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a value while keeping its last four characters.
// A country prefix such as "DE" in "DE123456789" is kept as well.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskFields returns a copy of input with the named keys masked at any depth.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]bool, len(keys))
	for _, k := range keys {
		sensitive[k] = true
	}
	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]bool) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if s, ok := value.(string); ok && sensitive[key] {
			out[key] = MaskSecret(s)
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = maskMap(cast, sensitive)
		default:
			out[key] = value
		}
	}
	return out
}

func splitPrefix(value string) (string, string) {
	if len(value) > 2 && isLetter(value[0]) && isLetter(value[1]) {
		return value[:2], value[2:]
	}
	return "", value
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
