package ipc

import "encoding/json"

// PatchOpKind names one step of the patch dispatch flow:
// create/connect/disconnect/delete build up a pending graph edit, prime
// renders it on the standby slot to check for silence, and commit/abort
// decide whether the edit becomes permanent.
type PatchOpKind string

const (
	PatchCreate     PatchOpKind = "create"
	PatchConnect    PatchOpKind = "connect"
	PatchDisconnect PatchOpKind = "disconnect"
	PatchDelete     PatchOpKind = "delete"
	PatchSet        PatchOpKind = "set"  // prime-batch step only; live sets travel via the command ring
	PatchGate       PatchOpKind = "gate" // prime-batch step only
	PatchPrime      PatchOpKind = "prime"
	PatchCommit     PatchOpKind = "commit"
	PatchAbort      PatchOpKind = "abort"
)

// PatchOp is the JSON-encoded payload of a TypePatchOp frame. Fields
// are interpreted per Kind; irrelevant fields are left zero. Patch ops
// are rare control messages, so they use encoding/json; fixed-width
// binary framing is reserved for the hot-path audio data.
type PatchOp struct {
	Kind PatchOpKind `json:"kind"`

	// create
	ModuleID string `json:"module_id,omitempty"`
	TypeName string `json:"type_name,omitempty"`

	// connect/disconnect
	SourceID string `json:"source_id,omitempty"`
	DestID   string `json:"dest_id,omitempty"`

	// set/gate (prime-batch steps only)
	Param string  `json:"param,omitempty"`
	Value float64 `json:"value,omitempty"`

	// prime: ops is the batch of create/connect/disconnect/delete/set/gate
	// steps to apply immediately before rendering WarmupCount blocks.
	// AllowSilent marks a rebuild prime (replaying an already-committed
	// graph onto a fresh worker), where silence is a legitimate state --
	// e.g. every gate is off -- rather than a failed patch.
	Ops         []PatchOp `json:"ops,omitempty"`
	WarmupCount int       `json:"warmup_count,omitempty"`
	AllowSilent bool      `json:"allow_silent,omitempty"`
}

// EncodePatchOp JSON-marshals op for WritePatchOp.
func EncodePatchOp(op PatchOp) ([]byte, error) { return json.Marshal(op) }

// DecodePatchOp validates a TypePatchOp frame and unmarshals its payload.
func DecodePatchOp(f Frame) (PatchOp, error) {
	var op PatchOp
	if f.Type != TypePatchOp {
		return op, errWrongFrameType
	}
	err := json.Unmarshal(f.Payload, &op)
	return op, err
}
