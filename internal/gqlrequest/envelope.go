// Package gqlrequest inspects incoming GraphQL requests before execution so
// that logging, metrics and tracing can describe them.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// Envelope is the transport-independent form of a GraphQL request.
type Envelope struct {
	Method        string
	Query         string
	OperationName string
	Variables     map[string]any
	SizeBytes     int
}

type postBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// DecodeEnvelope reads the GraphQL payload of r. A POST body is restored
// afterwards so the executing handler can read it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}
	env := Envelope{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		env.Query = q.Get("query")
		env.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &env.Variables); err != nil {
				return env, fmt.Errorf("invalid variables: %w", err)
			}
		}
	case http.MethodPost:
		if r.Body == nil {
			return env, nil
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return env, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/graphql" {
			env.Query = string(body)
			break
		}
		if len(bytes.TrimSpace(body)) == 0 {
			break
		}
		var payload postBody
		if err := json.Unmarshal(body, &payload); err != nil {
			return env, fmt.Errorf("invalid request body: %w", err)
		}
		env.Query = payload.Query
		env.OperationName = payload.OperationName
		env.Variables = payload.Variables
	}

	env.SizeBytes = len(env.Query)
	return env, nil
}
