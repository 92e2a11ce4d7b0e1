// internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/adapter/loopback"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/config"
)

func loopbackConfig(devType string) *config.Config {
	c := &config.Config{
		Adapter: config.AdapterConfig{Driver: "loopback"},
		Device:  config.DeviceConfig{Type: devType},
	}
	config.Normalize(c)
	return c
}

func TestBuild_ClaimsInOrder(t *testing.T) {
	bus := loopback.NewBus()
	ctx := context.Background()

	var got []cec.LogicalAddress
	for i := 0; i < 3; i++ {
		s, err := Build(ctx, loopbackConfig("playback"), bus, zerolog.Nop())
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		defer s.Close()
		got = append(got, s.LA)
	}
	want := []cec.LogicalAddress{cec.LogAddrPlayback1, cec.LogAddrPlayback2, cec.LogAddrPlayback3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claims=%v want %v", got, want)
		}
	}

	if _, err := Build(ctx, loopbackConfig("playback"), bus, zerolog.Nop()); !errors.Is(err, ErrNoFreeAddress) {
		t.Fatalf("fourth playback: err=%v", err)
	}
}

func TestBuild_Defaults(t *testing.T) {
	s, err := Build(context.Background(), loopbackConfig("tv"), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer s.Close()

	if s.LA != cec.LogAddrTV || s.PhysAddr != cec.PhysAddrRoot {
		t.Fatalf("la=%s pa=%s", s.LA, s.PhysAddr)
	}
	if s.Adapter.Mode() != adapter.ModeInitiatorFollower {
		t.Fatalf("mode=%s", s.Adapter.Mode())
	}
	if s.Adapter.LogAddrs() != cec.LogAddrMask(0).With(cec.LogAddrTV) {
		t.Fatalf("log addrs=%016b", s.Adapter.LogAddrs())
	}

	opts := s.EngineOptions(loopbackConfig("tv").Device)
	if opts.Version != cec.Version1_4 || opts.MenuLanguage != "eng" || opts.LA != cec.LogAddrTV {
		t.Fatalf("options=%+v", opts)
	}
}

func TestBuild_FixedAddress(t *testing.T) {
	c := loopbackConfig("playback")
	la := uint8(cec.LogAddrPlayback2)
	c.Device.LogicalAddress = &la
	c.Adapter.PhysAddr = "2.1.0.0"

	s, err := Build(context.Background(), c, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer s.Close()
	if s.LA != cec.LogAddrPlayback2 || s.PhysAddr != 0x2100 {
		t.Fatalf("la=%s pa=%s", s.LA, s.PhysAddr)
	}
	if s.Adapter.PhysAddr() != 0x2100 {
		t.Fatalf("adapter pa=%s", s.Adapter.PhysAddr())
	}
}
