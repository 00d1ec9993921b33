package gemini

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const truncateAt = 100

var base64Keys = map[string]bool{
	"data":               true,
	"bytesBase64Encoded": true,
}

func logRequest(method, url string, headers http.Header, body []byte) {
	if !log.Debug().Enabled() {
		return
	}

	h := zerolog.Dict()
	for key, values := range headers {
		value := strings.Join(values, ",")
		if strings.EqualFold(key, apiKeyHeader) {
			value = "[REDACTED]"
		}
		h.Str(key, value)
	}

	log.Debug().
		Str("method", method).
		Str("url", url).
		Dict("headers", h).
		RawJSON("body", truncateBase64InJSON(body)).
		Msg("gemini request")
}

func logResponse(statusCode int, elapsed time.Duration, body []byte) {
	if !log.Debug().Enabled() {
		return
	}

	log.Debug().
		Int("status", statusCode).
		Dur("elapsed", elapsed).
		RawJSON("body", truncateBase64InJSON(body)).
		Msg("gemini response")
}

// truncateBase64InJSON shortens inline image payloads so debug output stays
// readable. Bodies that are not JSON objects are returned as a JSON string.
func truncateBase64InJSON(body []byte) []byte {
	if len(body) == 0 {
		return []byte("null")
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		quoted, _ := json.Marshal(string(body))
		return quoted
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if base64Keys[key] && len(v) > truncateAt {
				data[key] = v[:truncateAt] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
