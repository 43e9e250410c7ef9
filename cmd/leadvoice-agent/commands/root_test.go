package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestNoSubcommandErrors(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Execute with no subcommand = nil, want error")
	}
	if !strings.Contains(err.Error(), "subcommand is required") {
		t.Fatalf("error = %v, want subcommand-required message", err)
	}
}

func TestUnknownSubcommandErrors(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"bogus"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("Execute with unknown subcommand = nil, want error")
	}
}

func TestStartRejectsArgs(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"start", "extra"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Execute with extra args = nil, want error")
	}
	if !strings.Contains(err.Error(), "unknown command") && !strings.Contains(err.Error(), "accepts") {
		t.Fatalf("error = %v, want usage error", err)
	}
}
