package types

// redactedPlaceholder replaces secret values wherever they would otherwise
// be printed or serialized.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive value (API keys, connection strings) that
// must never reach logs or response bodies. Both String and MarshalJSON
// emit a redacted placeholder, so fmt verbs and JSON encoding are safe by
// default; code that actually needs the plaintext calls Unmask.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Callers are the provider clients and the
// database pool; nothing on a logging path should touch it.
func (s SecretString) Unmask() string {
	return string(s)
}
