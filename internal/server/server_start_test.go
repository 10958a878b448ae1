package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/testutil"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func newServerForTest(shutdownSeconds int) *Server {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = shutdownSeconds

	return New(cfg, nil)
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close()

	return addr
}

func fixtureConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.ModelPath = testutil.WriteTinyModel(t, dir, testutil.ModelOptions{})
	cfg.Paths.VoicesPath = testutil.WriteVoicesNPZ(t, dir, "af_test", "bf_test")
	cfg.TTS.Voice = "af_test"
	cfg.TTS.Cache = config.CacheOff
	cfg.Server.ListenAddr = freeAddr(t)

	return cfg
}

func waitReady(t *testing.T, addr string) {
	t.Helper()

	var err error
	for range 100 {
		if err = ProbeHTTP(addr); err == nil {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("server never became ready: %v", err)
}

func TestStart_LifecycleHealthSynthesisAndShutdown(t *testing.T) {
	for _, watch := range []bool{false, true} {
		t.Run(fmt.Sprintf("watch=%v", watch), func(t *testing.T) {
			cfg := fixtureConfig(t)
			cfg.Server.WatchVoices = watch

			s := New(cfg, nil).WithShutdownTimeout(2 * time.Second)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				errCh <- s.Start(ctx)
			}()

			addr := cfg.Server.ListenAddr
			waitReady(t, addr)

			client := &http.Client{Timeout: 10 * time.Second}

			resp, err := client.Get("http://" + addr + "/voices")
			if err != nil {
				t.Fatalf("GET /voices: %v", err)
			}

			var voices []map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
				t.Fatalf("decode /voices: %v", err)
			}
			resp.Body.Close()

			if len(voices) != 2 {
				t.Fatalf("voices = %v; want 2 entries", voices)
			}

			resp, err = client.Post("http://"+addr+"/tts", "application/json",
				bytes.NewBufferString(`{"text":"Hello."}`))
			if err != nil {
				t.Fatalf("POST /tts: %v", err)
			}

			var body bytes.Buffer
			_, _ = body.ReadFrom(resp.Body)
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("/tts status = %d: %s", resp.StatusCode, body.String())
			}

			testutil.AssertValidWAV(t, body.Bytes())

			cancel()

			select {
			case err := <-errCh:
				if err != nil {
					t.Fatalf("Start() returned error: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("server did not shut down in time")
			}
		})
	}
}

func TestStart_EngineFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.ModelPath = t.TempDir() + "/missing.safetensors"
	cfg.Server.ListenAddr = freeAddr(t)

	err := New(cfg, nil).Start(context.Background())
	if !errors.Is(err, tts.ErrConstruction) {
		t.Fatalf("Start() error = %v; want ErrConstruction", err)
	}
}

func TestStart_WatchMissingVoices(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.VoicesPath = t.TempDir() + "/missing.bin"
	cfg.Server.WatchVoices = true
	cfg.Server.ListenAddr = freeAddr(t)

	err := New(cfg, nil).Start(context.Background())
	if !errors.Is(err, tts.ErrConstruction) {
		t.Fatalf("Start() error = %v; want ErrConstruction", err)
	}
}

func TestProbeHTTP_Unreachable(t *testing.T) {
	if err := ProbeHTTP(freeAddr(t)); err == nil {
		t.Fatal("want error for closed port")
	}
}
