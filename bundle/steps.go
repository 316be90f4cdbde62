package bundle

import (
	"context"

	"signet.dev/verify/b64u"
	"signet.dev/verify/chain"
	"signet.dev/verify/keys"
	"signet.dev/verify/sig"
)

// CheckResponseCID reports whether responseCID names the final receipt.
func CheckResponseCID(c chain.Chain, responseCID string) bool {
	if len(c) == 0 {
		return false
	}
	return c[len(c)-1].ReceiptHash == responseCID
}

// SelectKey picks the verification key for kid and checks it is usable for
// Ed25519.
func SelectKey(set keys.Set, kid string, policy keys.FallbackPolicy) (keys.Record, bool) {
	rec, err := keys.Select(set, kid, policy)
	if err != nil {
		return keys.Record{}, false
	}
	if rec.Curve() != keys.CurveEd25519 || !rec.IsEd25519() {
		return rec, false
	}
	return rec, true
}

// CheckSignatureShape reports whether signatureB64U decodes to exactly 64
// bytes.
func CheckSignatureShape(signatureB64U string) bool {
	raw, err := b64u.Decode(signatureB64U)
	return err == nil && len(raw) == SignatureSize
}

// Step names a stage of bundle verification.
type Step string

const (
	StepNone        Step = ""
	StepResponseCID Step = "response_cid"
	StepKey         Step = "key"
	StepSignature   Step = "signature_shape"
	StepCrypto      Step = "signature"
)

// Diagnosis records the first failing step of a verification, if any.
type Diagnosis struct {
	FailedStep Step
	// ResponseCID is the value that was checked and signed over.
	ResponseCID string
	// KeyID of the selected key, when one was selected.
	KeyID string
}

func (d Diagnosis) OK() bool { return d.FailedStep == StepNone }

// Diagnose runs the same pipeline as Verify and reports where it stopped.
func Diagnose(ctx context.Context, b Bundle, set keys.Set, opts ...Option) (Diagnosis, error) {
	if len(b.Chain) == 0 {
		return Diagnosis{}, ErrEmptyChain
	}
	if err := ctx.Err(); err != nil {
		return Diagnosis{}, err
	}
	o := newOptions(opts)

	responseCID := b.ResponseCID
	if responseCID == "" && o.responseCIDFallback {
		responseCID = b.Chain[len(b.Chain)-1].ReceiptHash
	}
	if !CheckResponseCID(b.Chain, responseCID) {
		return Diagnosis{FailedStep: StepResponseCID, ResponseCID: responseCID}, nil
	}
	rec, ok := SelectKey(set, b.KeyID, o.policy)
	if !ok {
		return Diagnosis{FailedStep: StepKey, ResponseCID: responseCID, KeyID: rec.KeyID()}, nil
	}
	d := Diagnosis{ResponseCID: responseCID, KeyID: rec.KeyID()}
	if !CheckSignatureShape(b.Signature) {
		d.FailedStep = StepSignature
		return d, nil
	}
	if !sig.VerifyRecord(SignedMessage(responseCID, b.TraceID, b.ExportedAt), b.Signature, rec) {
		d.FailedStep = StepCrypto
	}
	return d, nil
}
