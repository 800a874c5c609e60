package fpconfig

import "testing"

func TestParseEnvFileSetsKnownKeys(t *testing.T) {
	cfg := &Config{}
	parseEnvFile("FPRINT_SDCP_TRUST_BUNDLE=/etc/fprint/trust.pem\n"+
		"FPRINT_SDCP_INTERMEDIATE_BUNDLE=/etc/fprint/intermediates.pem\n"+
		"FPRINT_DEFAULT_ENROLL_STAGES=7\n"+
		"# a comment\n\n"+
		"FPRINT_VIRTUAL_BRIDGE_ADDR=localhost:9000\n", cfg)

	if cfg.SDCPTrustBundlePath != "/etc/fprint/trust.pem" {
		t.Errorf("SDCPTrustBundlePath = %q", cfg.SDCPTrustBundlePath)
	}
	if cfg.SDCPIntermediateBundlePath != "/etc/fprint/intermediates.pem" {
		t.Errorf("SDCPIntermediateBundlePath = %q", cfg.SDCPIntermediateBundlePath)
	}
	if cfg.DefaultEnrollStages != 7 {
		t.Errorf("DefaultEnrollStages = %d, want 7", cfg.DefaultEnrollStages)
	}
	if cfg.VirtualBridgeAddr != "localhost:9000" {
		t.Errorf("VirtualBridgeAddr = %q", cfg.VirtualBridgeAddr)
	}
}

func TestParseEnvFileIgnoresMalformedLines(t *testing.T) {
	cfg := &Config{DefaultEnrollStages: 5}
	parseEnvFile("not a key value line\nFPRINT_DEFAULT_ENROLL_STAGES=not-a-number\n", cfg)

	if cfg.DefaultEnrollStages != 5 {
		t.Errorf("DefaultEnrollStages should be unchanged on malformed value, got %d", cfg.DefaultEnrollStages)
	}
}

func TestReloadAppliesEnvironmentOverride(t *testing.T) {
	t.Setenv("FPRINT_DEFAULT_ENROLL_STAGES", "9")
	cfg := Reload()
	if cfg.DefaultEnrollStages != 9 {
		t.Errorf("DefaultEnrollStages = %d, want 9 from env override", cfg.DefaultEnrollStages)
	}
}
