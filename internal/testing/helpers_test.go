package testing

import (
	"testing"
)

func TestUnit(t *testing.T) {
	tests := []struct {
		name                string
		unitTestsOnly       string
		runIntegrationTests string
		expectedUnit        bool
	}{
		{"explicit unit tests only", "true", "", true},
		{"explicit integration tests enabled", "", "true", false},
		{"explicit integration tests disabled", "", "false", true},
		{"default configuration", "", "", true},
		{"unit tests override integration tests", "true", "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FANLOG_UNIT_TESTS_ONLY", tt.unitTestsOnly)
			t.Setenv("FANLOG_RUN_INTEGRATION_TESTS", tt.runIntegrationTests)

			if got := Unit(); got != tt.expectedUnit {
				t.Errorf("Unit() = %v, want %v", got, tt.expectedUnit)
			}
			if got := Integration(); got == tt.expectedUnit {
				t.Errorf("Integration() = %v, want %v", got, !tt.expectedUnit)
			}
		})
	}
}

func TestEnvOrSkipInUnitMode(t *testing.T) {
	t.Setenv("FANLOG_UNIT_TESTS_ONLY", "true")
	t.Setenv("FANLOG_TEST_SERVICE", "localhost:1234")

	ran := false
	t.Run("skipped", func(t *testing.T) {
		EnvOrSkip(t, "FANLOG_TEST_SERVICE")
		ran = true
	})
	if ran {
		t.Error("EnvOrSkip should skip in unit mode")
	}
}

func TestEnvOrSkipReturnsValue(t *testing.T) {
	t.Setenv("FANLOG_UNIT_TESTS_ONLY", "")
	t.Setenv("FANLOG_RUN_INTEGRATION_TESTS", "true")
	t.Setenv("FANLOG_TEST_SERVICE", "localhost:1234")

	if got := EnvOrSkip(t, "FANLOG_TEST_SERVICE"); got != "localhost:1234" {
		t.Errorf("EnvOrSkip = %q", got)
	}
}
