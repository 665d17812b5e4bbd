package domain

import (
	"fmt"
	"strings"
)

// Contract error codes. These are deployment/programmer errors: they must
// abort the transaction that triggered them and are never retried.
const (
	ContractNotRegistered   = "EVENT_CONTRACT_NOT_REGISTERED"
	ContractVersionMismatch = "EVENT_CONTRACT_VERSION_MISMATCH"
	IdempotencyKeyRequired  = "EVENT_IDEMPOTENCY_KEY_REQUIRED"
)

// ContractError carries a stable machine-readable code alongside the message.
type ContractError struct {
	Code    string
	Message string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func contractErrorf(code, format string, args ...any) *ContractError {
	return &ContractError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// EventContract is a static registry entry describing the agreed wire
// contract for one event type. Immutable once registered.
type EventContract struct {
	EventName          string
	OwnerService       string
	Version            int
	PayloadSchema      string
	IdempotencyKeyRule string
}

// ContractRegistry validates and enriches outbound event payloads before they
// reach the outbox. The registry is an explicit dependency-injected instance
// with process lifetime; registration happens once at startup.
type ContractRegistry struct {
	contracts map[string]EventContract
}

func NewContractRegistry(contracts ...EventContract) *ContractRegistry {
	r := &ContractRegistry{contracts: make(map[string]EventContract, len(contracts))}
	for _, c := range contracts {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a contract entry. Not safe for concurrent use;
// call during startup only.
func (r *ContractRegistry) Register(c EventContract) {
	r.contracts[c.EventName] = c
}

// Get returns the registered contract for an event type.
func (r *ContractRegistry) Get(eventType string) (EventContract, bool) {
	c, ok := r.contracts[eventType]
	return c, ok
}

// Enforce validates the payload against the registered contract for
// eventType and returns an enriched copy carrying the idempotency key and an
// event_contract metadata block. The input payload is not mutated.
//
// Enforce is pure and must run synchronously inside the same transaction as
// the aggregate mutation, immediately before the outbox insert. It is
// idempotent: re-running on an already-enriched payload leaves the key and
// version unchanged.
func (r *ContractRegistry) Enforce(eventType string, payload map[string]any, aggregateID string) (map[string]any, error) {
	contract, ok := r.contracts[eventType]
	if !ok {
		return nil, contractErrorf(ContractNotRegistered, "event type %q has no registered contract", eventType)
	}

	enriched := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		enriched[k] = v
	}

	requestedVersion := contract.Version
	if raw, ok := enriched["event_contract_version"]; ok {
		v, err := asInt(raw)
		if err != nil {
			return nil, contractErrorf(ContractVersionMismatch, "event %q carries malformed contract version %v", eventType, raw)
		}
		requestedVersion = v
	}
	if requestedVersion != contract.Version {
		return nil, contractErrorf(ContractVersionMismatch,
			"event %q requested contract version %d, registered version is %d", eventType, requestedVersion, contract.Version)
	}

	key := ""
	if raw, ok := enriched["idempotency_key"]; ok {
		if s, ok := raw.(string); ok {
			key = strings.TrimSpace(s)
		}
	}
	if key == "" {
		key = strings.TrimSpace(fmt.Sprintf("%s:%s", eventType, aggregateID))
	}
	if key == "" || key == ":" {
		return nil, contractErrorf(IdempotencyKeyRequired, "event %q has no resolvable idempotency key", eventType)
	}

	enriched["idempotency_key"] = key
	enriched["event_contract"] = map[string]any{
		"event_name":           contract.EventName,
		"owner_service":        contract.OwnerService,
		"version":              contract.Version,
		"payload_schema":       contract.PayloadSchema,
		"idempotency_key_rule": contract.IdempotencyKeyRule,
	}
	return enriched, nil
}

func asInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", raw)
	}
}
