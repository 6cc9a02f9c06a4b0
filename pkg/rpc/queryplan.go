package rpc

import (
	"encoding/json"

	"github.com/shardset/shardset/pkg/queryrange"
)

// DispatchQueryPlanHandler implements the server side of the
// "planQuery" Dispatch op: it parses a client predicate into component
// B's range representation (spec §4.B) and reports the derived access
// pattern, the way the router would use it to decide whether a cached
// plan for the same shape still applies. Only the base conjunction is
// planned; a predicate's $or clauses are a router-side concern (spec §9
// "OR queries"), not this per-shard op.
func DispatchQueryPlanHandler(req *DispatchRequest) (*DispatchResponse, error) {
	var payload QueryPlanPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}

	orSet, err := queryrange.Parse(queryrange.Predicate(payload.Predicate))
	if err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}

	pattern := queryrange.DerivePattern(orSet.Base, payload.Sort)
	fields := make(map[string]int, len(pattern.Fields))
	for f, k := range pattern.Fields {
		fields[f] = int(k)
	}

	result := QueryPlanResult{Fields: fields, Sort: pattern.Sort}
	body, err := json.Marshal(result)
	if err != nil {
		return &DispatchResponse{Err: err.Error()}, nil
	}
	return &DispatchResponse{Payload: body}, nil
}
