package main

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "create-user": false, "seed": false, "env": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %s not registered", name)
		}
	}
	if rootCmd.PersistentFlags().Lookup("verbose") == nil {
		t.Fatalf("verbose flag missing")
	}
}

func TestLevelFor(t *testing.T) {
	if levelFor("debug") != zapcore.DebugLevel || levelFor("warn") != zapcore.WarnLevel {
		t.Fatalf("unexpected level mapping")
	}
	if levelFor("nonsense") != zapcore.InfoLevel {
		t.Fatalf("unknown levels fall back to info")
	}
}
