// Package verifier samples the start of a wiped device and judges whether the
// bytes match what the erase method should have left behind.
package verifier

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
)

// Signature is the expected statistical shape of a wiped region.
type Signature string

const (
	// SignatureZeros means the region should read back as zeros.
	SignatureZeros Signature = "zeros"
	// SignatureRandom means the region should read back as high-entropy
	// ciphertext, as left by a cryptographic erase.
	SignatureRandom Signature = "random"
)

// Technique identifies how the sample was obtained.
const Technique = "direct_read_sampling"

// DefaultPreviewBytes is the length of the retained hex preview.
const DefaultPreviewBytes = 64

// ExpectedSignature maps an erase method to its signature.
func ExpectedSignature(m device.Method) Signature {
	if m == device.MethodCryptoErase {
		return SignatureRandom
	}
	return SignatureZeros
}

// Result is an immutable verification outcome. Success reports whether a
// sample could be taken at all; WipeEffective is the classification.
type Result struct {
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	Method         device.Method `json:"erase_method"`
	TotalBytes     int64         `json:"total_bytes"`
	ZeroBytes      int64         `json:"zero_bytes"`
	NonZeroBytes   int64         `json:"non_zero_bytes"`
	ZeroPercentage float64       `json:"zero_percentage"`
	ExpectedResult Signature     `json:"expected_result"`
	WipeEffective  bool          `json:"wipe_effective"`
	HexdumpSample  string        `json:"hexdump_sample"`
	Technique      string        `json:"verification_method"`
	Disclaimer     string        `json:"disclaimer"`
	VerifiedAt     time.Time     `json:"verified_at"`
}

// Disclaimer accompanies every result shown to an operator.
const Disclaimer = "Sampling verification reads only the start of the device and applies a byte-count threshold. " +
	"It cannot prove erasure; it only makes non-erasure implausible in the sampled region."

// Classify computes the verification result for sample. An empty sample is
// reported as unsuccessful.
func Classify(sample []byte, m device.Method, previewBytes int) *Result {
	r := &Result{
		Method:         m,
		ExpectedResult: ExpectedSignature(m),
		Technique:      Technique,
		Disclaimer:     Disclaimer,
		VerifiedAt:     time.Now().UTC(),
	}
	if len(sample) == 0 {
		r.Error = "No data could be read from the device"
		return r
	}

	var nonZero int64
	for _, b := range sample {
		if b != 0 {
			nonZero++
		}
	}
	total := int64(len(sample))

	r.Success = true
	r.TotalBytes = total
	r.NonZeroBytes = nonZero
	r.ZeroBytes = total - nonZero
	r.ZeroPercentage = math.Round(float64(r.ZeroBytes)/float64(total)*100*100) / 100

	switch r.ExpectedResult {
	case SignatureRandom:
		r.WipeEffective = nonZero*2 > total
	default:
		r.WipeEffective = nonZero*100 < total
	}

	if previewBytes <= 0 {
		previewBytes = DefaultPreviewBytes
	}
	if previewBytes > len(sample) {
		previewBytes = len(sample)
	}
	r.HexdumpSample = hex.EncodeToString(sample[:previewBytes])
	return r
}

// failed builds an unsuccessful result carrying msg.
func failed(m device.Method, msg string) *Result {
	return &Result{
		Error:          msg,
		Method:         m,
		ExpectedResult: ExpectedSignature(m),
		Technique:      Technique,
		Disclaimer:     Disclaimer,
		VerifiedAt:     time.Now().UTC(),
	}
}
