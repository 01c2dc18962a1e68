package lark

import "encoding/json"

// textContent renders the Lark text message body, which is a JSON object
// rather than a bare string.
func textContent(text string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
