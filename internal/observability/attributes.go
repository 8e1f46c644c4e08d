package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrAlgorithm = "algorithm"
	attrSuccess   = "success"
	attrJobStatus = "job_status"
	attrReason    = "reason"
	attrDelivered = "delivered"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality: 200-299 -> 2xx, etc.
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func algorithmAttr(algorithm string) attribute.KeyValue {
	return attribute.String(attrAlgorithm, algorithm)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func jobStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrJobStatus, status)
}

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String(attrReason, reason)
}

func deliveredAttr(delivered bool) attribute.KeyValue {
	return attribute.Bool(attrDelivered, delivered)
}

// normalizePath replaces the job ID path segment with a placeholder so
// metric cardinality stays bounded.
func normalizePath(path string) string {
	for _, prefix := range []string{"/v1/jobs/", "/internal/jobs/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return prefix + "{jobId}" + rest[idx:]
		}
		return prefix + "{jobId}"
	}
	return path
}
