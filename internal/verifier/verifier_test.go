package verifier

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
)

// ============================================================================
// Test Helpers
// ============================================================================

// sampleWithNonZero returns total bytes of which the first nonZero are 0xA5.
func sampleWithNonZero(total, nonZero int) []byte {
	b := make([]byte, total)
	for i := 0; i < nonZero; i++ {
		b[i] = 0xA5
	}
	return b
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nvme0n1.img")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// ============================================================================
// Classify Tests
// ============================================================================

func TestClassify_FormatMostlyZeros(t *testing.T) {
	r := Classify(sampleWithNonZero(1000, 5), device.MethodFormat, 0)

	if !r.Success {
		t.Fatalf("expected success, got error %q", r.Error)
	}
	if !r.WipeEffective {
		t.Error("expected wipe_effective for 0.5% non-zero under format")
	}
	if r.ZeroPercentage != 99.5 {
		t.Errorf("expected zero percentage 99.5, got %v", r.ZeroPercentage)
	}
	if r.ZeroBytes != 995 || r.NonZeroBytes != 5 || r.TotalBytes != 1000 {
		t.Errorf("unexpected counts: zero=%d nonzero=%d total=%d", r.ZeroBytes, r.NonZeroBytes, r.TotalBytes)
	}
	if r.ExpectedResult != SignatureZeros {
		t.Errorf("expected signature zeros, got %s", r.ExpectedResult)
	}
}

func TestClassify_CryptoEraseRandom(t *testing.T) {
	sample := sampleWithNonZero(1000, 600)

	crypto := Classify(sample, device.MethodCryptoErase, 0)
	if !crypto.WipeEffective {
		t.Error("expected wipe_effective for 60% non-zero under crypto_erase")
	}
	if crypto.ExpectedResult != SignatureRandom {
		t.Errorf("expected signature random, got %s", crypto.ExpectedResult)
	}

	format := Classify(sample, device.MethodFormat, 0)
	if format.WipeEffective {
		t.Error("expected the same sample to fail under format")
	}
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		method  device.Method
		nonZero int
		want    bool
	}{
		{"secure erase just under 1%", device.MethodSecureErase, 9, true},
		{"secure erase exactly 1%", device.MethodSecureErase, 10, false},
		{"crypto erase exactly 50%", device.MethodCryptoErase, 500, false},
		{"crypto erase just over 50%", device.MethodCryptoErase, 501, true},
		{"crypto erase all zeros", device.MethodCryptoErase, 0, false},
		{"format all zeros", device.MethodFormat, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(sampleWithNonZero(1000, tt.nonZero), tt.method, 0)
			if r.WipeEffective != tt.want {
				t.Errorf("wipe_effective = %v, want %v", r.WipeEffective, tt.want)
			}
		})
	}
}

func TestClassify_ZeroPercentageRounding(t *testing.T) {
	r := Classify(sampleWithNonZero(3, 1), device.MethodFormat, 0)
	if r.ZeroPercentage != 66.67 {
		t.Errorf("expected 66.67, got %v", r.ZeroPercentage)
	}
}

func TestClassify_EmptySample(t *testing.T) {
	r := Classify(nil, device.MethodFormat, 0)
	if r.Success {
		t.Error("expected an empty sample to be unsuccessful")
	}
	if r.WipeEffective {
		t.Error("empty sample must not be classified effective")
	}
	if r.Error == "" {
		t.Error("expected a descriptive error")
	}
}

func TestClassify_HexPreview(t *testing.T) {
	sample := make([]byte, 128)
	sample[0] = 0xde
	sample[1] = 0xad

	r := Classify(sample, device.MethodFormat, 0)
	if len(r.HexdumpSample) != 2*DefaultPreviewBytes {
		t.Errorf("expected %d hex chars, got %d", 2*DefaultPreviewBytes, len(r.HexdumpSample))
	}
	if !strings.HasPrefix(r.HexdumpSample, "dead00") {
		t.Errorf("unexpected preview %q", r.HexdumpSample)
	}

	short := Classify([]byte{1, 2}, device.MethodFormat, 64)
	if short.HexdumpSample != "0102" {
		t.Errorf("expected preview of the whole short sample, got %q", short.HexdumpSample)
	}
}

func TestClassify_Metadata(t *testing.T) {
	r := Classify([]byte{0}, device.MethodSecureErase, 0)
	if r.Technique != Technique {
		t.Errorf("expected technique %s, got %s", Technique, r.Technique)
	}
	if r.Disclaimer == "" {
		t.Error("expected disclaimer to be set")
	}
	if r.Method != device.MethodSecureErase {
		t.Errorf("expected method secure_erase, got %s", r.Method)
	}
}

// ============================================================================
// Sampler Tests
// ============================================================================

func TestNewSampler_Defaults(t *testing.T) {
	s := NewSampler(Options{}, nil)
	if s.opts.SampleBytes != DefaultSampleBytes {
		t.Errorf("expected default sample size, got %d", s.opts.SampleBytes)
	}
	if s.opts.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", s.opts.Timeout)
	}
	if s.logger == nil {
		t.Error("expected default logger to be set")
	}
}

func TestSampler_ReadsBoundedPrefix(t *testing.T) {
	image := make([]byte, 16384)
	path := writeImage(t, image)

	s := NewSampler(Options{SampleBytes: 4096, Timeout: time.Second}, logger.NewNop())
	r := s.Verify(context.Background(), path, device.MethodFormat)

	if !r.Success {
		t.Fatalf("expected success, got %q", r.Error)
	}
	if r.TotalBytes != 4096 {
		t.Errorf("expected 4096 sampled bytes, got %d", r.TotalBytes)
	}
	if !r.WipeEffective {
		t.Error("expected zeroed image to verify under format")
	}
}

func TestSampler_DeviceSmallerThanSample(t *testing.T) {
	path := writeImage(t, sampleWithNonZero(1000, 5))

	s := NewSampler(Options{SampleBytes: 8192, Timeout: time.Second}, logger.NewNop())
	r := s.Verify(context.Background(), path, device.MethodFormat)

	if r.TotalBytes != 1000 {
		t.Errorf("expected 1000 bytes, got %d", r.TotalBytes)
	}
	if r.ZeroPercentage != 99.5 {
		t.Errorf("expected 99.5, got %v", r.ZeroPercentage)
	}
}

func TestSampler_DirectIO(t *testing.T) {
	image := make([]byte, 8192)
	if _, err := rand.Read(image); err != nil {
		t.Fatalf("rand: %v", err)
	}
	path := writeImage(t, image)

	s := NewSampler(Options{SampleBytes: 8192, Timeout: 5 * time.Second, DirectIO: true}, logger.NewNop())
	r := s.Verify(context.Background(), path, device.MethodCryptoErase)

	if !r.Success {
		t.Fatalf("expected success, got %q", r.Error)
	}
	if r.TotalBytes != 8192 {
		t.Errorf("expected 8192 bytes, got %d", r.TotalBytes)
	}
	if !r.WipeEffective {
		t.Error("expected random image to verify under crypto_erase")
	}
}

func TestSampler_MissingDevice(t *testing.T) {
	s := NewSampler(Options{SampleBytes: 512, Timeout: time.Second}, logger.NewNop())
	r := s.Verify(context.Background(), filepath.Join(t.TempDir(), "nvme9n1"), device.MethodFormat)

	if r.Success {
		t.Error("expected failure for missing device")
	}
	if !strings.Contains(r.Error, "Failed to open") {
		t.Errorf("unexpected error %q", r.Error)
	}
	if r.WipeEffective {
		t.Error("failed verification must not be effective")
	}
}

func TestSampler_Timeout(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pw.Close()

	s := NewSampler(Options{SampleBytes: 512, Timeout: 50 * time.Millisecond}, logger.NewNop())
	s.open = func(string, bool) (*os.File, error) { return pr, nil }

	start := time.Now()
	r := s.Verify(context.Background(), "/dev/nvme0n1", device.MethodFormat)

	if r.Success {
		t.Fatal("expected timeout to be unsuccessful")
	}
	if !strings.Contains(r.Error, "timed out") {
		t.Errorf("expected timeout error, got %q", r.Error)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}

	// The reader must have been closed.
	if _, err := pr.Read(make([]byte, 1)); err == nil {
		t.Error("expected sample handle to be closed after timeout")
	}
}

func TestRoundUp(t *testing.T) {
	if got := roundUp(1000, 4096); got != 4096 {
		t.Errorf("roundUp(1000) = %d", got)
	}
	if got := roundUp(8192, 4096); got != 8192 {
		t.Errorf("roundUp(8192) = %d", got)
	}
}
