// internal/adapter/match.go
package adapter

import "github.com/tamzrod/cec-compliance/internal/cec"

// IsReplyTo reports whether in answers the pending transmit sent.
// A reply comes from sent's destination and carries either the expected
// opcode or a Feature Abort naming sent's opcode. Replies may be broadcast.
func IsReplyTo(sent, in *cec.Msg) bool {
	if !sent.WantReply || in.IsPoll() {
		return false
	}
	if in.Initiator() != sent.Destination() {
		return false
	}
	if in.Destination() != sent.Initiator() && !in.IsBroadcast() {
		return false
	}
	op, _ := in.Opcode()
	if op == cec.OpFeatureAbort {
		if in.IsBroadcast() {
			return false
		}
		aborted, ok := in.Operand(0)
		sentOp, _ := sent.Opcode()
		return ok && cec.Opcode(aborted) == sentOp
	}
	return op == sent.Reply
}

// Complete fills the reply side of sent from in.
func Complete(sent, in *cec.Msg) {
	sent.Response = in
	sent.RxTimestamp = in.RxTimestamp
	if op, _ := in.Opcode(); op == cec.OpFeatureAbort && sent.Reply != cec.OpFeatureAbort {
		sent.RxStatus = cec.RxOK | cec.RxFeatureAbort
		return
	}
	sent.RxStatus = cec.RxOK
}
