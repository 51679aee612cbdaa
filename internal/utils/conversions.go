package utils

// ToStringSlice keeps the string elements of a decoded JSON array. Claims
// decoded into map[string]any carry arrays as []any.
func ToStringSlice(value any) []string {
	stringSlice := make([]string, 0)
	switch v := value.(type) {
	case []string:
		return append(stringSlice, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}
