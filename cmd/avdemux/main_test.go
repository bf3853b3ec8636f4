package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/segmentio/ksuid"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/esdump"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("AVDEMUX_TEST_VALUE", "set")
	if got := envOr("AVDEMUX_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("got %q, want %q", got, "set")
	}
	if got := envOr("AVDEMUX_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q, want %q", got, "fallback")
	}
}

func TestOpenFlagsConfig(t *testing.T) {
	t.Parallel()
	o := openFlags{format: "flv", options: "probesize=100,fflags=nobuffer"}
	cfg := o.config(nil)
	if cfg.ForcedFormat != "flv" {
		t.Errorf("forced format: got %q, want flv", cfg.ForcedFormat)
	}
	if cfg.Options["probesize"] != "100" || cfg.Options["fflags"] != "nobuffer" {
		t.Errorf("options: got %v", cfg.Options)
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()
	var dump bytes.Buffer
	w, err := esdump.NewWriter(&dump, ksuid.New())
	if err != nil {
		t.Fatal(err)
	}
	f := &es.Format{Kind: es.KindAudio, Codec: "aac", FourCC: "mp4a", Audio: es.AudioFormat{Rate: 48000, Channels: 2}}
	if err := w.WriteFormat(0, f); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteBlock(0, &es.Block{Data: []byte{1, 2}, DTS: es.Tick(i * 21_333), PTS: es.Tick(i * 21_333), Key: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.WriteSeekpoint(1); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := inspect(&out, &dump, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	got := out.String()
	for _, want := range []string{"stream #0: audio aac", "48000Hz 2ch", "seekpoint 1", "stream #0: 3 blocks", "block #0 dts=21.333ms"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestInspectRejectsOtherFiles(t *testing.T) {
	t.Parallel()
	if err := inspect(&bytes.Buffer{}, strings.NewReader("not a dump"), false); err == nil {
		t.Fatal("expected error")
	}
}

func TestProbeCommand(t *testing.T) {
	t.Parallel()
	cmd := probeCmd()
	cmd.SetArgs([]string{"/nonexistent/file.mp4"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
