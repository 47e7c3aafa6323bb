// Package testutil provides shared fixtures and skip helpers for tests.
//
// Each Require helper calls Skipf with a clear human-readable reason when the
// named prerequisite is absent, so tests that need the network or a local
// model file remain runnable in partial environments without failing noisily.
//
// Typical usage:
//
//	func TestTikTokenBaseline(t *testing.T) {
//	    testutil.RequireNetwork(t)
//	    ...
//	}
package testutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// OfflineEnv disables every network-dependent test when set to a non-empty value.
const OfflineEnv = "HINDITOK_OFFLINE"

// SentencePieceEnv names an explicit SentencePiece model for baseline tests.
const SentencePieceEnv = "HINDITOK_SP_MODEL"

// probeAddr is the host tiktoken-go fetches its encoding files from.
var probeAddr = "openaipublic.blob.core.windows.net:443"

// RequireNetwork skips the test when OfflineEnv is set or the tiktoken
// encoding host cannot be reached within two seconds.
func RequireNetwork(tb testing.TB) {
	tb.Helper()

	if os.Getenv(OfflineEnv) != "" {
		tb.Skipf("network tests disabled by %s", OfflineEnv)
		return
	}

	conn, err := net.DialTimeout("tcp", probeAddr, 2*time.Second)
	if err != nil {
		tb.Skipf("network not available (%s unreachable): %v", probeAddr, err)
		return
	}
	_ = conn.Close()
}

// RequireSentencePieceModel returns the path of a SentencePiece model,
// skipping the test when none is available. SentencePieceEnv wins; otherwise
// models/tokenizer.model is searched from the working directory upwards.
func RequireSentencePieceModel(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv(SentencePieceEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		tb.Skipf("SentencePiece model not found at %s=%q", SentencePieceEnv, p)
		return ""
	}

	dir, err := filepath.Abs(".")
	if err != nil {
		tb.Skipf("resolve working directory: %v", err)
		return ""
	}
	for {
		candidate := filepath.Join(dir, "models", "tokenizer.model")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	tb.Skipf("models/tokenizer.model not found; set %s to override", SentencePieceEnv)
	return ""
}

// GreetingLines is a tiny preprocessed Hindi corpus. Trained with a target of
// 40 and minimum frequency 2 it yields 11 merges and a 30-entry vocabulary.
func GreetingLines() []string {
	return []string{
		"नमस्ते भारत",
		"नमस्ते दोस्त",
		"भारत महान है",
		"नमस्ते नमस्ते",
		"भारत में सब दोस्त हैं",
	}
}
